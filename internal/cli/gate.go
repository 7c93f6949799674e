package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the local quality gate without committing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		format, _ := cmd.Flags().GetString("format")

		ctrl, cleanup, err := newController()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := ctrl.Gate(fix)
		if err != nil {
			return fmt.Errorf("run gate: %w", err)
		}

		if format == "json" {
			jsonStr, err := res.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
		} else {
			w := cmd.OutOrStdout()
			for _, c := range res.Checks {
				icon := "PASS"
				if !c.Passed {
					icon = "FAIL"
				}
				extra := ""
				if c.AutoFixed {
					extra = " (auto-fixed)"
				}
				fmt.Fprintf(w, "[%s] %s — %s%s\n", icon, c.Check, c.Summary, extra)
			}
			if res.Passed {
				fmt.Fprintln(w, "\nGate PASSED")
			} else {
				fmt.Fprintf(w, "\nGate FAILED (%d issues)\n", len(res.Issues))
				for _, issue := range res.Issues {
					loc := ""
					if issue.File != "" {
						loc = fmt.Sprintf("%s:%d: ", issue.File, issue.Line)
					}
					fmt.Fprintf(w, "  [%s] %s%s\n", issue.Category, loc, issue.Message)
				}
			}
		}

		if !res.Passed {
			cmd.SilenceUsage = true
			return fmt.Errorf("gate failed: %d issues", len(res.Issues))
		}
		return nil
	},
}

func init() {
	gateCmd.Flags().Bool("fix", true, "Run auto-fix commands for fixable checks")
	gateCmd.Flags().String("format", "text", "Output format: text or json")
}
