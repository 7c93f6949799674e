package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/lucasnoah/greenlight/internal/state"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show in-flight orchestrations, or one in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.DefaultStore()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			return showOrchestration(cmd, store, args[0])
		}

		phase, _ := cmd.Flags().GetString("phase")
		states, err := store.List(state.Phase(phase))
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, states)
		}

		if len(states) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No orchestrations found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPHASE\tBRANCH\tLOCAL\tREMOTE\tCOMMIT\tUPDATED")
		for _, st := range states {
			commit := st.CommitSHA
			if len(commit) > 8 {
				commit = commit[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d/%d\t%s\t%s\n",
				st.ID, st.Phase, st.Branch,
				st.LocalAttempts, st.MaxLocal,
				st.RemoteAttempts, st.MaxRemote,
				commit, st.UpdatedAt)
		}
		return w.Flush()
	},
}

// showOrchestration prints one orchestration in full, archived or live.
func showOrchestration(cmd *cobra.Command, store *state.Store, id string) error {
	st, err := store.Get(id)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		return writeJSON(cmd, st)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ID:        %s\n", st.ID)
	fmt.Fprintf(w, "Phase:     %s\n", st.Phase)
	fmt.Fprintf(w, "Branch:    %s\n", st.Branch)
	fmt.Fprintf(w, "Workdir:   %s\n", st.Workdir)
	fmt.Fprintf(w, "Ecosystem: %s\n", st.Ecosystem)
	if st.CommitSHA != "" {
		fmt.Fprintf(w, "Commit:    %s\n", st.CommitSHA)
	}
	fmt.Fprintf(w, "Budgets:   %d/%d local, %d/%d remote\n",
		st.LocalAttempts, st.MaxLocal, st.RemoteAttempts, st.MaxRemote)
	if st.TerminalReason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", st.TerminalReason)
	}

	if len(st.Transitions) > 0 {
		fmt.Fprintf(w, "\nTransitions:\n")
		for _, tr := range st.Transitions {
			fmt.Fprintf(w, "  %s  %s -> %s  %s\n", tr.At, tr.From, tr.To, tr.Reason)
		}
	}
	if len(st.AppliedFixes) > 0 {
		fmt.Fprintf(w, "\nApplied fixes:\n")
		for _, fix := range st.AppliedFixes {
			status := "ok"
			if !fix.Success {
				status = "failed"
			}
			fmt.Fprintf(w, "  [%s] %s via %s (%s, %s)\n", status, fix.Category, fix.Target, fix.Kind, fix.Scope)
		}
	}
	return nil
}

func init() {
	statusCmd.Flags().String("phase", "", "Filter by phase")
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
