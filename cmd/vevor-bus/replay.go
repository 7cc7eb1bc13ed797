package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vevorbus/vevor-bus/internal/bus"
	"github.com/vevorbus/vevor-bus/internal/capture"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

func newReplayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Decode a recording offline",
		Long: `Feed a recording made with "record" through the decoder and print every
value it yields, followed by the decoder counters. Transaction timing follows
the recorded capture times.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rec, err := capture.LoadFile(args[0])
			if err != nil {
				return err
			}
			stats, err := replay(cmd.Context(), rec, cfg.ProtocolTiming(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			writeStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func replay(ctx context.Context, rec *capture.Recording, timing protocol.Timing, w io.Writer) (protocol.Stats, error) {
	src := capture.NewReplayer(rec)
	decoder := protocol.NewDecoder(timing,
		protocol.WithClock(src.Now),
		protocol.WithLogger(log.Logger),
		protocol.WithHandler(func(v protocol.Value) {
			fmt.Fprintf(w, "%s %s\n", v.Time.UTC().Format("15:04:05.000000"), v)
		}),
	)
	err := bus.NewReceiver(src, decoder, nil).Run(ctx)
	return decoder.Stats(), err
}

func writeStats(w io.Writer, s protocol.Stats) {
	fmt.Fprintf(w, "pulses=%d discarded=%d preambles=%d frames=%d truncated=%d\n",
		s.Pulses, s.Discarded, s.Preambles, s.Frames, s.Truncated)
	fmt.Fprintf(w, "bytes=%d words=%d suppressed=%d spurious_words=%d\n",
		s.Bytes, s.Words, s.Suppressed, s.SpuriousWords)
}
