package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/vesper/internal/config"
	"firestige.xyz/vesper/internal/sink/console"
	"firestige.xyz/vesper/internal/source/file"
)

var (
	replayFile    string
	replayConsole bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a pcap or pcapng file through the pipeline",
	Long: `
Replay an offline capture through the same decode and publish path as start.
The metrics server is not started.

Examples:
  vesper replay -f capture.pcap --console         # Print records to stdout
  vesper replay -f capture.pcapng -c config.yml   # Publish with the configured sink
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadReplayConfig(configFile, replayFile, replayConsole)
		if err != nil {
			return err
		}
		return run(cfg, runOptions{serveMetrics: false})
	},
}

// loadReplayConfig reads the config, applies the replay overrides and only
// then validates, so the file capture needs no file key of its own.
func loadReplayConfig(configPath, capturePath string, toConsole bool) (*config.GlobalConfig, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}
	applyReplay(cfg, capturePath, toConsole)
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyReplay points the capture at path and, with console, swaps the sink for
// the console sink.
func applyReplay(cfg *config.GlobalConfig, path string, toConsole bool) {
	cfg.Capture.Type = file.Name
	cfg.Capture.File = path
	if toConsole {
		cfg.Sink.Type = console.Name
		cfg.Sink.Options = nil
	}
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "capture file to replay (required)")
	replayCmd.Flags().BoolVar(&replayConsole, "console", false, "print records to stdout instead of publishing")
	replayCmd.MarkFlagRequired("file")
}
