package cli

import (
	"github.com/spf13/cobra"

	"github.com/evcraddock/proptech-copilot/internal/client"
)

func newChangesCmd() *cobra.Command {
	var opts client.ChangeOptions

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List your recorded changes",
		Long:  "List your changes newest first, optionally filtered by entity or session.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			changes, err := c.ListChanges(opts)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(changes)
			}
			return printChangeTable(changes)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "only this entity type")
	cmd.Flags().StringVar(&opts.EntityID, "entity-id", "", "only this entity id")
	cmd.Flags().StringVar(&opts.SessionID, "in-session", "", "only changes made in this session")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries (default 50)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "entries to skip")

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize your changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			s, err := c.ChangeStats()
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(s)
			}
			printStats(s)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <entity-type> <entity-id>",
		Short: "Show the changes to one entity",
		Long:  "Show your changes to one entity, newest first. Property scenarios use entity type property_state.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			changes, err := c.EntityHistory(args[0], args[1], limit)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(changes)
			}
			return printChangeTable(changes)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (default 50)")

	return cmd
}
