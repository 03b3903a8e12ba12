package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/vesper/internal/source/pcap"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := pcap.Devices()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESSES\tDESCRIPTION")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, strings.Join(d.Addresses, ","), d.Description)
		}
		return w.Flush()
	},
}
