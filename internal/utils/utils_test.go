package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestShowError(t *testing.T) {
	var buf bytes.Buffer
	old := errOut
	errOut = &buf
	defer func() { errOut = old }()

	ShowError("Failed to open webcam", errors.New("device busy"))

	out := buf.String()
	if !strings.Contains(out, "CAMCAL ERROR: Failed to open webcam") {
		t.Errorf("Missing context in output: %q", out)
	}
	if !strings.Contains(out, "DETAILS: device busy") {
		t.Errorf("Missing details in output: %q", out)
	}

	buf.Reset()
	ShowError("No details", nil)
	if strings.Contains(buf.String(), "DETAILS") {
		t.Errorf("Unexpected details line: %q", buf.String())
	}
}

func TestDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  map[string]string
		want string
	}{
		{
			name: "Flag wins",
			flag: "postgres://flag/db",
			env:  map[string]string{"POSTGRES_HOST": "envhost"},
			want: "postgres://flag/db",
		},
		{
			name: "Disabled without flag or env",
			want: "",
		},
		{
			name: "Built from environment",
			env: map[string]string{
				"POSTGRES_HOST":     "db",
				"POSTGRES_USER":     "u",
				"POSTGRES_PASSWORD": "p",
				"POSTGRES_DB":       "history",
				"POSTGRES_PORT":     "6543",
			},
			want: "postgres://u:p@db:6543/history",
		},
		{
			name: "Environment defaults",
			env:  map[string]string{"POSTGRES_HOST": "db", "POSTGRES_USER": "u", "POSTGRES_PASSWORD": "p"},
			want: "postgres://u:p@db:5432/camcal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_PORT"} {
				t.Setenv(k, tt.env[k])
			}
			if got := DatabaseURL(tt.flag); got != tt.want {
				t.Errorf("DatabaseURL(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}
