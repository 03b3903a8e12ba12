package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/vesper/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Capture live traffic and publish flow records",
	Long: `
Start capturing on the configured source and publish one flow record per frame.
Runs until the source ends or SIGINT/SIGTERM is received.

Examples:
  vesper start -c config.yml              # Start with config.yml
  VESPER_SINK_TYPE=console vesper start   # Defaults, print records instead of publishing
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return run(cfg, runOptions{serveMetrics: true})
	},
}
