package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "greenlight",
	Short: "greenlight — keep CI green without babysitting it",
	Long: `greenlight runs your project's quality gate locally, fixes what it can,
commits and pushes the result, then watches remote CI and remediates
failures until the commit is green or a budget runs out.

All state is stored in ~/.greenlight/ (SQLite for events, JSON for
orchestration state). Interrupted runs resume with 'greenlight resume'.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
