package cli

import (
	"github.com/spf13/cobra"
)

func newPropertiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "properties",
		Aliases: []string{"list"},
		Short:   "List properties as you see them",
		Long:    "List every baseline property with your scenario applied.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			views, err := c.ListProperties()
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(views)
			}
			return printViewTable(views)
		},
	}
}

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <property-id>",
		Short: "Show one property with your scenario applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			v, err := c.GetView(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(v)
			}
			printView(v)
			return nil
		},
	}
}

func newOverlaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overlays",
		Short: "List the properties you have changed",
		Long:  "List your stored overrides with the savings of the last scenario computed for each.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			states, err := c.ListOverlays()
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(states)
			}
			return printOverlayTable(states)
		},
	}
}
