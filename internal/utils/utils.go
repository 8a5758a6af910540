package utils

import (
	"fmt"
	"io"
	"os"
)

// --- 1. Error Reporting ---

// errOut is where error boxes go; tests swap it out.
var errOut io.Writer = os.Stderr

// ShowError prints the framed error box without exiting.
// Commands use it before returning the error to Cobra.
func ShowError(context string, err error) {
	fmt.Fprintf(errOut, "\n---------------------------------------------------------\n")
	fmt.Fprintf(errOut, "🚨 CAMCAL ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(errOut, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(errOut, "---------------------------------------------------------\n")
}

// --- 2. Configuration ---

// DatabaseURL resolves the history database connection string.
// An explicit flag wins; otherwise POSTGRES_* variables are used. It returns ""
// when neither is set, meaning history is disabled.
func DatabaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	if name == "" {
		name = "camcal"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
