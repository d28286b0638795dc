package cli

import (
	"github.com/spf13/cobra"
)

func newRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <property-id>",
		Short: "Suggest actions for a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			recs, err := c.Recommendations(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(recs)
			}
			printRecommendations(recs)
			return nil
		},
	}
}

func newForecastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forecast <property-id>",
		Short: "Forecast occupancy for the next 7 days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			points, err := c.Forecast(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(points)
			}
			return printForecast(points)
		},
	}
}

func newRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk <property-id>",
		Short: "Assess location risk and carbon footprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			report, err := c.Risk(args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(report)
			}
			printRisk(report)
			return nil
		},
	}
}
