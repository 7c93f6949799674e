package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/lucasnoah/greenlight/internal/orchestrator"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Gate, fix, commit, push, and watch CI until green",
	Long: `Runs the local quality gate, applies automatic fixes until it passes,
commits and pushes the working tree, then watches remote CI. CI failures
are classified and remediated, the commit is amended and force-pushed,
and the watch restarts — until CI is green or a fix budget runs out.

Interrupting with Ctrl-C records the orchestration as cancelled; pick it
back up later with 'greenlight resume'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		amend, _ := cmd.Flags().GetBool("amend")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		forceGate, _ := cmd.Flags().GetBool("force-gate")
		fix, _ := cmd.Flags().GetBool("fix")
		format, _ := cmd.Flags().GetString("format")

		ctrl, cleanup, err := newController()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := ctrl.Submit(ctx, orchestrator.SubmitOpts{
			Message:   message,
			Amend:     amend,
			DryRun:    dryRun,
			ForceGate: forceGate,
			NoFix:     !fix,
		})
		if err != nil {
			return err
		}

		if err := printReport(cmd, report, format); err != nil {
			return err
		}
		if dryRun {
			if len(report.Issues) > 0 {
				cmd.SilenceUsage = true
				return fmt.Errorf("gate failed with %d issues", len(report.Issues))
			}
			return nil
		}
		if !report.Succeeded() {
			cmd.SilenceUsage = true
			return fmt.Errorf("orchestration ended %s: %s", report.Phase, report.Reason)
		}
		return nil
	},
}

// printReport renders a terminal report as text or JSON.
func printReport(cmd *cobra.Command, report *orchestrator.Report, format string) error {
	if format == "json" {
		return writeJSON(cmd, report)
	}

	w := cmd.OutOrStdout()
	if report.ID != "" {
		fmt.Fprintf(w, "Orchestration: %s\n", report.ID)
	}
	if report.Phase != "" {
		fmt.Fprintf(w, "Outcome:       %s\n", report.Phase)
	}
	if report.Reason != "" {
		fmt.Fprintf(w, "Reason:        %s\n", report.Reason)
	}
	if report.CommitSHA != "" {
		fmt.Fprintf(w, "Commit:        %s\n", report.CommitSHA)
	}
	if report.LocalAttempts > 0 || report.RemoteAttempts > 0 {
		fmt.Fprintf(w, "Fix rounds:    %d local, %d remote\n", report.LocalAttempts, report.RemoteAttempts)
	}

	if len(report.Issues) > 0 {
		fmt.Fprintf(w, "\nRemaining issues:\n")
		for _, issue := range report.Issues {
			loc := ""
			if issue.File != "" {
				loc = fmt.Sprintf("%s:%d: ", issue.File, issue.Line)
			}
			fmt.Fprintf(w, "  [%s] %s%s\n", issue.Category, loc, issue.Message)
		}
	}
	if len(report.AppliedFixes) > 0 {
		fmt.Fprintf(w, "\nApplied fixes:\n")
		for _, fix := range report.AppliedFixes {
			status := "ok"
			if !fix.Success {
				status = "failed"
			}
			fmt.Fprintf(w, "  [%s] %s via %s (%s, %s)\n", status, fix.Category, fix.Target, fix.Kind, fix.Scope)
		}
	}
	if report.NextAction != "" {
		fmt.Fprintf(w, "\nNext: %s\n", report.NextAction)
	}
	return nil
}

func init() {
	submitCmd.Flags().StringP("message", "m", "", "Commit message for the validated changes")
	submitCmd.Flags().Bool("amend", false, "Amend HEAD instead of creating a new commit")
	submitCmd.Flags().Bool("dry-run", false, "Run the gate and report; no state, commit, or push")
	submitCmd.Flags().Bool("force-gate", false, "Run even if the working tree is clean")
	submitCmd.Flags().Bool("fix", true, "Attempt automatic fixes for gate failures")
	submitCmd.Flags().String("format", "text", "Output format: text or json")
}
