package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Continue an interrupted orchestration from its saved phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		ctrl, cleanup, err := newController()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := ctrl.Resume(ctx, args[0])
		if err != nil {
			return err
		}

		if err := printReport(cmd, report, format); err != nil {
			return err
		}
		if !report.Succeeded() {
			cmd.SilenceUsage = true
			return fmt.Errorf("orchestration ended %s: %s", report.Phase, report.Reason)
		}
		return nil
	},
}

func init() {
	resumeCmd.Flags().String("format", "text", "Output format: text or json")
}
