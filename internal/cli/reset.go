package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <property-id>",
		Short: "Discard your scenario for one property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			res, err := c.Reset(args[0], flagSession)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(res)
			}
			if res.Reset {
				fmt.Printf("Reset %s to baseline.\n", args[0])
			} else {
				fmt.Printf("%s has no overrides.\n", args[0])
			}
			return nil
		},
	}
}

func newResetAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-all",
		Short: "Discard your scenario for every property",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			n, err := c.ResetAll(flagSession)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(map[string]int{"reset_count": n})
			}
			fmt.Printf("Reset %d %s.\n", n, plural(n, "property", "properties"))
			return nil
		},
	}
}
