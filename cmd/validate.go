package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/vesper/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without capturing anything, then print
the effective configuration (file, environment and defaults merged) as YAML.

Examples:
  vesper validate -c config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("INVALID: %w", err)
		}
		out, err := yaml.Marshal(map[string]any{"vesper": cfg})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "# VALID")
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
