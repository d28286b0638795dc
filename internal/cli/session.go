package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Group changes into editing sessions",
		Long:  "Sessions group the changes made during one sitting. Pass --session <id> to other commands to attribute their changes.",
	}
	cmd.AddCommand(
		newSessionStartCmd(),
		newSessionEndCmd(),
		newSessionListCmd(),
		newSessionShowCmd(),
	)
	return cmd
}

func newSessionStartCmd() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an editing session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			if device == "" {
				device = defaultDevice()
			}
			s, err := c.StartSession(device)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			fmt.Printf("Started session %s\n", s.SessionID)
			fmt.Printf("Use --session %s to attribute changes to it.\n", s.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "device description (default: ptc on this host)")

	return cmd
}

func newSessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "End an editing session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			s, err := c.EndSession(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			fmt.Printf("Ended session %s after %d %s.\n", s.SessionID, s.ChangesCount, plural(s.ChangesCount, "change", "changes"))
			return nil
		},
	}
}

func newSessionListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			sessions, err := c.ListSessions(limit)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(sessions)
			}
			return printSessionTable(sessions)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum sessions (default 20)")

	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			s, err := c.SessionSummary(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			printSession(&s.Session)
			fmt.Println()
			return printChangeTable(s.Changes)
		},
	}
}

func defaultDevice() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ptc"
	}
	return "ptc on " + host
}
