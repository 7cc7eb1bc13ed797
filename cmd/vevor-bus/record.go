package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vevorbus/vevor-bus/internal/bus"
	"github.com/vevorbus/vevor-bus/internal/capture"
	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

func newRecordCmd(opts *options) *cobra.Command {
	var (
		out      string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture raw pulses to a file",
		Long: `Capture the receive line into a CBOR recording while decoding it live.
Recording stops after --duration, or on SIGINT/SIGTERM when no duration is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			src, err := gpio.NewCapture(cfg.Capture())
			if err != nil {
				return fmt.Errorf("init capture: %w", err)
			}
			defer src.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			rec, err := record(ctx, src, cfg.ProtocolTiming(), time.Now)
			if err != nil {
				return err
			}
			if err := capture.SaveFile(out, rec); err != nil {
				return err
			}
			log.Info().
				Str("file", out).
				Int("batches", len(rec.Batches)).
				Int("pulses", rec.PulseCount()).
				Msg("recording saved")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "vevor.cbor", "Output file")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// record decodes src until ctx ends or the source closes and returns what
// passed through.
func record(ctx context.Context, src gpio.Source, timing protocol.Timing, now func() time.Time) (*capture.Recording, error) {
	recorder := capture.NewRecorder(src, now)
	decoder := protocol.NewDecoder(timing,
		protocol.WithClock(now),
		protocol.WithLogger(log.Logger),
		protocol.WithHandler(func(v protocol.Value) {
			log.Info().Stringer("value", v).Msg("decoded")
		}),
	)
	if err := bus.NewReceiver(recorder, decoder, nil).Run(ctx); err != nil {
		return recorder.Recording(), err
	}
	return recorder.Recording(), nil
}
