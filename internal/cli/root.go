// Package cli defines the cobra command tree for ptc.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/proptech-copilot/internal/client"
	"github.com/evcraddock/proptech-copilot/internal/db"
)

var (
	flagFormat  string
	flagDB      string
	flagUser    string
	flagServer  string
	flagSession string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ptc",
		Short:         "Explore floor-closure scenarios across a property portfolio",
		Long:          "A copilot for property managers. Close and reopen floors in a private what-if scenario, see the financial, energy and carbon impact, and review every change you made.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: ~/.config/ptc/copilot.db)")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "user id (default: from PTC_USER or config)")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "server URL (default: from PTC_SERVER_URL, config or http://localhost:8080)")
	root.PersistentFlags().StringVar(&flagSession, "session", "", "editing session to attribute changes to")

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newPropertiesCmd(),
		newViewCmd(),
		newOverlaysCmd(),
		newCloseCmd(),
		newOpenCmd(),
		newParamsCmd(),
		newResetCmd(),
		newResetAllCmd(),
		newChangesCmd(),
		newStatsCmd(),
		newHistoryCmd(),
		newSessionCmd(),
		newRecommendCmd(),
		newForecastCmd(),
		newRiskCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// openDB opens the SQLite database using the --db flag, or fallback when the
// flag is unset.
func openDB(fallback string) (*sql.DB, error) {
	path := flagDB
	if path == "" {
		path = fallback
	}
	if path == "" {
		var err error
		path, err = db.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return db.Open(path)
}

// newAPIClient creates an HTTP client for the ptc API. It fails when no user
// is configured.
func newAPIClient() (*client.Client, error) {
	user, err := requireUser()
	if err != nil {
		return nil, err
	}
	return client.New(getServerURL(), user), nil
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}
