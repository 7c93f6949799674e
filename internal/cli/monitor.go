package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasnoah/greenlight/internal/ci"
	"github.com/lucasnoah/greenlight/internal/config"
	"github.com/lucasnoah/greenlight/internal/gitops"
	"github.com/lucasnoah/greenlight/internal/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [commit]",
	Short: "Watch remote CI for a commit until it settles",
	Long: `Polls the CI runs triggered by a commit (HEAD when omitted) until they
all succeed, one fails, or the monitoring ceiling is reached. Does not
remediate anything; use 'greenlight submit' for the full loop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var commit string
		if len(args) == 1 {
			commit = args[0]
		} else {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			repo := gitops.NewRepo(&gitops.ExecRunner{}, dir)
			commit, err = repo.Head()
			if err != nil {
				return err
			}
		}

		mon := monitor.New(ci.NewGHProvider(&ci.ExecRunner{}))
		mon.FastInterval = cfg.Greenlight.Polling.FastIntervalDuration()
		mon.SlowInterval = cfg.Greenlight.Polling.SlowIntervalDuration()
		mon.AgeThreshold = cfg.Greenlight.Polling.AgeThresholdDuration()
		mon.Ceiling = cfg.Greenlight.Budgets.MonitorCeilingDuration()
		mon.SetProgress(os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		outcome, err := mon.Watch(ctx, commit)
		if err != nil {
			return fmt.Errorf("watch CI: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			if err := writeJSON(cmd, outcome); err != nil {
				return err
			}
		} else {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Verdict: %s (%d polls over %s)\n", outcome.Verdict, outcome.Polls, outcome.Elapsed.Round(time.Second))
			if outcome.FailedRun != nil {
				fmt.Fprintf(w, "Failed:  %s (%s)\n", outcome.FailedRun.Name, outcome.FailedRun.URL)
			}
			for _, name := range outcome.Pending {
				fmt.Fprintf(w, "Pending: %s\n", name)
			}
		}

		if outcome.Verdict != monitor.VerdictSuccess {
			cmd.SilenceUsage = true
			return fmt.Errorf("CI did not go green: %s", outcome.Verdict)
		}
		return nil
	},
}

func init() {
	monitorCmd.Flags().String("format", "text", "Output format: text or json")
}
