package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

func newEncodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <value>",
		Short: "Print the pulse sequence for a byte",
		Long: `Print the ten pulse records that encode a byte: two sync records
followed by eight data bits, most significant first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := protocol.ParseByte(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			writePulses(cmd.OutOrStdout(), b, cfg.ProtocolTiming().Encode(b))
			return nil
		},
	}
}

func writePulses(w io.Writer, b byte, pulses []protocol.Pulse) {
	fmt.Fprintf(w, "0x%02X (%d) %08b\n", b, b, b)
	for i, p := range pulses {
		label := "sync"
		if i >= 2 {
			label = fmt.Sprintf("bit %d", 9-i)
		}
		fmt.Fprintf(w, "%2d %-6s %s\n", i, label, p)
	}
}
