package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/proptech-copilot/internal/client"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

func newCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <property-id> <floor>...",
		Short: "Close floors in your scenario",
		Long:  "Close one or more floors. Floors may be separated by spaces or commas. Closing a closed floor changes nothing.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFloors(args, (*client.Client).CloseFloors)
		},
	}
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <property-id> <floor>...",
		Short: "Reopen floors in your scenario",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFloors(args, (*client.Client).OpenFloors)
		},
	}
}

type floorsFunc func(c *client.Client, propertyID string, floors []int, sessionID string) (*scenario.MutationResult, error)

func runFloors(args []string, fn floorsFunc) error {
	floors, err := parseFloors(args[1:])
	if err != nil {
		return err
	}
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	res, err := fn(c, args[0], floors, flagSession)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(res)
	}
	if !res.Changed {
		fmt.Println("No change.")
	}
	printView(res.View)
	return nil
}

// parseFloors accepts floor numbers as separate arguments, comma lists, or
// both.
func parseFloors(args []string) ([]int, error) {
	var floors []int
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid floor: %s", part)
			}
			floors = append(floors, n)
		}
	}
	if len(floors) == 0 {
		return nil, fmt.Errorf("at least one floor is required")
	}
	return floors, nil
}

func newParamsCmd() *cobra.Command {
	var (
		hybrid      float64
		target      float64
		clearTarget bool
	)

	cmd := &cobra.Command{
		Use:   "params <property-id>",
		Short: "Set hybrid intensity or target occupancy",
		Long:  "Set the hybrid work intensity (0.1-1.5) or the target occupancy (0.1-1.0) used by your scenario for a property.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req scenario.ParamsRequest
			if cmd.Flags().Changed("hybrid") {
				req.HybridIntensity = &hybrid
			}
			if cmd.Flags().Changed("target") {
				req.TargetOccupancy = &target
			}
			req.ClearTarget = clearTarget
			if req.HybridIntensity == nil && req.TargetOccupancy == nil && !req.ClearTarget {
				return fmt.Errorf("nothing to change: pass --hybrid, --target or --clear-target")
			}

			c, err := newAPIClient()
			if err != nil {
				return err
			}
			v, err := c.UpdateParams(args[0], req, flagSession)
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

	cmd.Flags().Float64Var(&hybrid, "hybrid", 1.0, "hybrid work intensity")
	cmd.Flags().Float64Var(&target, "target", 0, "target occupancy of the remaining floors")
	cmd.Flags().BoolVar(&clearTarget, "clear-target", false, "use current occupancy instead of a target")

	return cmd
}
