package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/lucasnoah/greenlight/internal/classify"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [logfile]",
	Short: "Categorize a CI failure log",
	Long: `Reads a failure log from the given file (or stdin when omitted) and
reports the failure category, match confidence, and the log excerpt the
decision was based on.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
		}

		cls := classify.Classify(string(data))

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, cls)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Category:   %s\n", cls.Category)
		fmt.Fprintf(w, "Confidence: %.2f\n", cls.Confidence)
		if cls.Evidence != "" {
			fmt.Fprintf(w, "Evidence:   %s\n", cls.Evidence)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().String("format", "text", "Output format: text or json")
}
