package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

// printJSON marshals v as indented JSON and writes it to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printView prints a single effective view in text format.
func printView(v *scenario.EffectiveView) {
	if v == nil {
		return
	}
	fmt.Printf("%s  %s\n", v.PropertyID, v.Name)
	fmt.Printf("  Location:    %s\n", v.Location)
	fmt.Printf("  Floors:      %d active of %d\n", v.ActiveFloors, v.Floors)
	if len(v.ClosedFloors) > 0 {
		fmt.Printf("  Closed:      %s\n", formatFloors(v.ClosedFloors))
	}
	fmt.Printf("  Occupancy:   %s (%s)\n", formatPercent(v.OccupancyRate), v.Utilization)
	fmt.Printf("  Efficiency:  %.1f\n", v.EfficiencyScore)
	fmt.Printf("  Profit/day:  %s\n", formatMoney(v.Financials.Profit))
	if v.HybridIntensity != 1 {
		fmt.Printf("  Hybrid:      %g\n", v.HybridIntensity)
	}
	if v.TargetOccupancy != nil {
		fmt.Printf("  Target:      %s\n", formatPercent(*v.TargetOccupancy))
	}

	r := v.Scenario
	if r == nil {
		return
	}
	fmt.Println("  Scenario:")
	if r.Infeasible {
		fmt.Printf("    ✗ %s\n", r.Reason)
		return
	}
	fmt.Printf("    Remaining floors at %s, %s overload risk\n",
		formatPercent(r.RiskAssessment.NewAvgOccupancy), r.RiskAssessment.OverloadRisk)
	fmt.Printf("    Savings:   %s/week, %s/month\n",
		formatMoney(r.Savings.TotalWeeklySavings), formatMoney(r.Savings.TotalMonthlySavings))
	fmt.Printf("    Energy:    -%.1f%%\n", r.EnergyImpact.EnergyReductionPercent)
	fmt.Printf("    Carbon:    %.2f t/year avoided\n", r.CarbonImpact.AnnualCarbonReductionTons)
	fmt.Printf("    Efficiency %+.1f\n", r.EfficiencyChange.Improvement)
}

// printViewTable prints a list of views as a formatted table.
func printViewTable(views []*scenario.EffectiveView) error {
	if len(views) == 0 {
		fmt.Println("No properties found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tNAME\tFLOORS\tCLOSED\tOCCUPANCY\tSTATUS\tPROFIT/DAY"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "--\t----\t------\t------\t---------\t------\t----------"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, v := range views {
		closed := "-"
		if len(v.ClosedFloors) > 0 {
			closed = formatFloors(v.ClosedFloors)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			v.PropertyID, truncate(v.Name, 30), v.ActiveFloors, v.Floors, closed,
			formatPercent(v.OccupancyRate), v.Utilization, formatMoney(v.Financials.Profit)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Printf("\nTotal: %d %s\n", len(views), plural(len(views), "property", "properties"))
	return nil
}

// printOverlayTable prints stored overrides as a formatted table.
func printOverlayTable(states []*overlay.State) error {
	if len(states) == 0 {
		fmt.Println("No overrides.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "PROPERTY\tCLOSED\tHYBRID\tTARGET\tVERSION\tSAVINGS/MONTH"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, st := range states {
		closed, target := "-", "-"
		if len(st.ClosedFloors) > 0 {
			closed = formatFloors(st.ClosedFloors)
		}
		if st.TargetOccupancy != nil {
			target = formatPercent(*st.TargetOccupancy)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%d\t%s\n",
			st.PropertyID, closed, st.HybridIntensity, target, st.Version, cachedSavings(st.LastSimulation)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

// cachedSavings renders the monthly savings of a cached scenario report.
func cachedSavings(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "-"
	}
	var r engine.Report
	if err := json.Unmarshal(raw, &r); err != nil || r.Infeasible {
		return "-"
	}
	return formatMoney(r.Savings.TotalMonthlySavings)
}

// printChangeTable prints audit entries as a formatted table.
func printChangeTable(changes []audit.Change) error {
	if len(changes) == 0 {
		fmt.Println("No changes.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "TIME\tENTITY\tFIELD\tOLD\tNEW\tSESSION"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}

	for _, c := range changes {
		session := c.SessionID
		if session == "" {
			session = "-"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Timestamp.Local().Format("2006-01-02 15:04:05"), c.EntityID, c.Field,
			truncate(string(c.OldValue), 24), truncate(string(c.NewValue), 24), session); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	return w.Flush()
}

func printStats(s *audit.Stats) {
	fmt.Printf("User:           %s\n", s.UserID)
	fmt.Printf("Total changes:  %d\n", s.TotalChanges)
	for entityType, n := range s.ByEntityType {
		fmt.Printf("  %-14s %d\n", entityType+":", n)
	}
	if s.LastActivity != nil {
		fmt.Printf("Last activity:  %s\n", s.LastActivity.Local().Format("2006-01-02 15:04"))
	}
}

func printSession(s *audit.Session) {
	state := "active"
	if !s.Active {
		state = "ended"
	}
	fmt.Printf("Session %s (%s)\n", s.SessionID, state)
	fmt.Printf("  Started:  %s\n", s.StartedAt.Local().Format("2006-01-02 15:04"))
	if s.EndedAt != nil {
		fmt.Printf("  Ended:    %s\n", s.EndedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("  Changes:  %d\n", s.ChangesCount)
	if s.DeviceInfo != "" {
		fmt.Printf("  Device:   %s\n", s.DeviceInfo)
	}
}

func printSessionTable(sessions []*audit.Session) error {
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tSTARTED\tCHANGES\tACTIVE\tDEVICE"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, s := range sessions {
		active := "no"
		if s.Active {
			active = "yes"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.SessionID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.ChangesCount, active,
			truncate(s.DeviceInfo, 30)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

// printRecommendations prints recommendations in text format.
func printRecommendations(recs []engine.Recommendation) {
	if len(recs) == 0 {
		fmt.Println("No recommendations.")
		return
	}

	for _, r := range recs {
		fmt.Printf("[%s] %s\n", strings.ToUpper(r.Priority), r.Title)
		fmt.Printf("  %s\n", r.Description)
		if len(r.FloorsToClose) > 0 {
			fmt.Printf("  Floors:      %s\n", formatFloors(r.FloorsToClose))
		}
		if r.FinancialImpact != 0 {
			fmt.Printf("  Impact:      %s/month\n", formatMoney(r.FinancialImpact))
		}
		fmt.Printf("  Confidence:  %s\n\n", formatPercent(r.ConfidenceScore))
	}
}

func printForecast(points []engine.ForecastPoint) error {
	if len(points) == 0 {
		fmt.Println("Not enough history to forecast.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "DATE\tOCCUPANCY\tCONFIDENCE"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, p := range points {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n",
			p.Date, formatPercent(p.ForecastedOccupancy), formatPercent(p.Confidence)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

func printRisk(r *scenario.RiskReport) {
	a, c := r.Analysis, r.Carbon
	fmt.Printf("%s (%s)\n", a.PropertyName, a.City)
	fmt.Printf("  Risk:        %d/100 %s\n", a.OverallRiskScore, a.RiskLevel)
	fmt.Printf("  Resilience:  %d/100\n", a.ClimateResilienceScore)
	for _, k := range a.KeyRisks {
		fmt.Printf("  - %-24s %-8s %s\n", k.Name, k.Severity, formatPercent(k.Probability))
	}
	fmt.Printf("  Carbon:      %s kg/month over %d of %d floors\n",
		formatMoney(c.MonthlyCarbonKg), c.ActiveFloors, c.TotalFloors)
	fmt.Printf("  Avoidable:   %s kg/month\n", formatMoney(c.CarbonReductionPotential))
	fmt.Printf("\n%s\n", a.RecommendationSummary)
}

// formatMoney formats an amount with thousands separators and no decimals.
func formatMoney(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := strconv.FormatInt(int64(math.Round(amount)), 10)

	// Add commas
	if len(s) <= 3 {
		return sign + s
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	return sign + strings.Join(parts, ",")
}

// formatPercent formats a 0-1 rate as a percentage.
func formatPercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func formatFloors(floors []int) string {
	parts := make([]string, len(floors))
	for i, f := range floors {
		parts[i] = strconv.Itoa(f)
	}
	return strings.Join(parts, ",")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
