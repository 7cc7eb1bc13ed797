package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vevorbus/vevor-bus/internal/bus"
	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

func newSendCmd(opts *options) *cobra.Command {
	var (
		repeat int
		gap    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <value>",
		Short: "Transmit one byte on the TX line",
		Long: `Encode a byte and drive it onto the TX line. The value may be decimal,
hex (0xA5), octal (0o17) or binary (0b1010).`,
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
			sink, err := gpio.NewTransmitter(cfg.Bus.Chip, cfg.Bus.TXPin)
			if err != nil {
				return fmt.Errorf("init transmitter: %w", err)
			}
			defer sink.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sendRepeated(ctx, bus.NewTransmitter(sink, cfg.ProtocolTiming()), b, repeat, gap)
		},
	}
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 1, "Number of times to send the byte")
	cmd.Flags().DurationVar(&gap, "gap", 100*time.Millisecond, "Pause between repeated sends")
	return cmd
}

func sendRepeated(ctx context.Context, tx *bus.Transmitter, b byte, repeat int, gap time.Duration) error {
	if repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", repeat)
	}
	for i := 0; i < repeat; i++ {
		if i > 0 && gap > 0 {
			select {
			case <-time.After(gap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := tx.SendByte(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
