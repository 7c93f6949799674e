package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/lucasnoah/greenlight/internal/analytics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Query orchestration performance stats",
}

var statsPhasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Average and percentile time spent per phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryPhaseDurations(d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No phase data recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PHASE\tCOUNT\tAVG(m)\tP50(m)\tP95(m)")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", r.Phase, r.Count, r.Avg, r.P50, r.P95)
		}
		return w.Flush()
	},
}

var statsOutcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "How orchestrations ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryOutcomes(d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No finished orchestrations yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "OUTCOME\tCOUNT\tPCT")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", r.Phase, r.Count, r.Pct)
		}
		return w.Flush()
	},
}

var statsChecksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Gate check failure and auto-fix rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryCheckStats(d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No check runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tRUNS\tFAIL%\tAUTOFIX%\tAVG(ms)")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", r.Check, r.Total, r.FailRate, r.AutoFixRate, r.AvgMs)
		}
		return w.Flush()
	},
}

var statsFixesCmd = &cobra.Command{
	Use:   "fixes",
	Short: "Fix success rates per failure category",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryFixRates(d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No fix actions recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tTOTAL\tSUCCESS%\tDELEGATED%\tREMOTE%")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", r.Category, r.Total, r.SuccessRate, r.Delegated, r.Remote)
		}
		return w.Flush()
	},
}

var statsIterationsCmd = &cobra.Command{
	Use:   "iterations",
	Short: "Average fix iterations per orchestration, local vs remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryIterations(d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No fix actions recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCOPE\tORCHESTRATIONS\tFIXES\tAVG/ORCH")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\n", r.Scope, r.Orchestrations, r.Total, r.AvgPerOrch)
		}
		return w.Flush()
	},
}

var statsThroughputCmd = &cobra.Command{
	Use:   "throughput",
	Short: "Weekly submission counts and outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		results, err := analytics.QueryThroughput(d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No submissions recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WEEK\tSTARTED\tSUCCEEDED\tBLOCKED\tTIMED OUT")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.Period, r.Started, r.Succeeded, r.Blocked, r.TimedOut)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{statsPhasesCmd, statsOutcomesCmd, statsChecksCmd, statsFixesCmd, statsIterationsCmd, statsThroughputCmd} {
		c.Flags().String("since", "", "Only include records at or after this timestamp (e.g. 2026-01-01)")
		c.Flags().String("format", "text", "Output format: text or json")
		statsCmd.AddCommand(c)
	}
}
