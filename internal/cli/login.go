package cli

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
)

const maxUserIDLen = 64

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <user>",
		Short: "Store the user id to act as",
		Long:  "Saves the user id (and the --server URL, if given) to the config file. Identity is not verified; the server trusts the user id it receives.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(args[0])
		},
	}
}

func runLogin(user string) error {
	user = strings.TrimSpace(user)
	if err := validateUserID(user); err != nil {
		return err
	}

	// Load existing config to preserve other fields
	cfg, err := loadConfig()
	if err != nil {
		cfg = CLIConfig{}
	}

	cfg.User = user
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}

	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Acting as %s.\n", user)
	return nil
}

// validateUserID checks that the id is non-empty, short, and free of
// whitespace and control characters.
func validateUserID(user string) error {
	if user == "" {
		return fmt.Errorf("no user id provided")
	}
	if len(user) > maxUserIDLen {
		return fmt.Errorf("user id is longer than %d characters", maxUserIDLen)
	}
	if strings.IndexFunc(user, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("user id must not contain whitespace")
	}
	return nil
}
