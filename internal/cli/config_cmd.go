package cli

import (
	"fmt"

	"github.com/lucasnoah/greenlight/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and report every problem",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return err
		}
		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Config OK")
			return nil
		}
		for _, e := range errs {
			fmt.Fprintf(cmd.OutOrStdout(), "ERROR %s\n", e.Error())
		}
		cmd.SilenceUsage = true
		return fmt.Errorf("%d config errors", len(errs))
	},
}

func loadConfigFlag(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("file")
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func init() {
	configShowCmd.Flags().String("file", "", "Config file to load instead of the default search path")
	configValidateCmd.Flags().String("file", "", "Config file to load instead of the default search path")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
