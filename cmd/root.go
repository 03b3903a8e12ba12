// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	// Capture sources and sinks register themselves with their factories.
	_ "firestige.xyz/vesper/internal/sink/amqp"
	_ "firestige.xyz/vesper/internal/sink/console"
	_ "firestige.xyz/vesper/internal/sink/kafka"
	_ "firestige.xyz/vesper/internal/source/afpacket"
	_ "firestige.xyz/vesper/internal/source/file"
	_ "firestige.xyz/vesper/internal/source/pcap"
)

// Global flags
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vesper",
	Short: "Vesper - packet capture to flow record ingestion",
	Long: `Vesper captures link-layer traffic, decodes each frame's network and transport
headers, reduces it to a flow record and publishes the record to an event stream.

Records go to topic "raw_metrics" with key "flow" unless routing says otherwise.
Sinks: kafka, amqp, console. Sources: pcap, afpacket (Linux), file (pcap/pcapng).`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and VESPER_* environment when empty)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(devicesCmd)
}
