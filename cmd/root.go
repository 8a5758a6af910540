package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/camcal/internal/store"
	"github.com/andresmejia3/camcal/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// DB is the optional history database shared by subcommands. It stays nil
	// when no connection string is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
)

// errNoHistory is returned by commands that need the history database when none is configured.
var errNoHistory = errors.New("history database not configured (use --db or POSTGRES_HOST)")

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "camcal",
	Short:   "Interactive chessboard camera calibration",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		url := utils.DatabaseURL(dbURL)
		if url == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		var err error
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for calibration history (default: POSTGRES_* environment, disabled if unset)")
}
