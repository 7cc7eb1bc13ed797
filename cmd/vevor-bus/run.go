package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vevorbus/vevor-bus/internal/bus"
	"github.com/vevorbus/vevor-bus/internal/config"
	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/mqtt"
	"github.com/vevorbus/vevor-bus/internal/nats"
	"github.com/vevorbus/vevor-bus/internal/protocol"
	"github.com/vevorbus/vevor-bus/internal/publish"
	"github.com/vevorbus/vevor-bus/internal/status"
	"github.com/vevorbus/vevor-bus/internal/web"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the decoder daemon",
		Long: `Capture the bus, decode values, publish them and serve the status page
until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	timing := cfg.ProtocolTiming()

	capture, err := gpio.NewCapture(cfg.Capture())
	if err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	defer capture.Close()

	// Transmit is optional: the daemon still decodes without a TX line.
	var tx *bus.Transmitter
	sink, err := gpio.NewTransmitter(cfg.Bus.Chip, cfg.Bus.TXPin)
	if err != nil {
		log.Warn().Err(err).Int("pin", cfg.Bus.TXPin).Msg("transmit disabled")
	} else {
		defer sink.Close()
		tx = bus.NewTransmitter(sink, timing)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:        cfg.Bus.Chip,
		RXPin:       cfg.Bus.RXPin,
		TXPin:       cfg.Bus.TXPin,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      brokerDisplay(cfg),
		NATS:        natsDisplay(cfg),
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if tx != nil {
		tx.OnSent = tracker.RecordSent
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publishers publish.Multi
	var mqttStatus publish.ConnectionStatus
	if cfg.MQTT.Enabled {
		var onCommand mqtt.CommandFunc
		if tx != nil {
			onCommand = func(b byte) {
				go func() {
					if err := tx.SendByte(ctx, b); err != nil {
						log.Error().Err(err).Msg("mqtt send command failed")
					}
				}()
			}
		}
		p, err := mqtt.New(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Commands:    cfg.MQTT.Command,
			BufferSize:  cfg.MQTT.Buffer,
		}, onCommand)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publishers = append(publishers, p)
		mqttStatus = p
	}
	if cfg.NATS.Enabled {
		p, err := nats.New(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		publishers = append(publishers, p)
	}
	defer publishers.Close()

	hub := web.NewHub(web.OriginChecker(cfg.HTTP.CORSOrigins))
	if cfg.HTTP.Addr != "" {
		var sender web.Sender
		if tx != nil {
			sender = tx
		}
		srv := web.New(cfg.HTTP.Addr, tracker, sender, hub, cfg.HTTP.CORSOrigins)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var tick <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info().
		Str("chip", cfg.Bus.Chip).
		Int("rx_pin", cfg.Bus.RXPin).
		Int("tx_pin", cfg.Bus.TXPin).
		Dur("heartbeat", cfg.Heartbeat).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("started")

	d := &daemon{
		source:     capture,
		timing:     timing,
		queueSize:  cfg.Bus.DispatchQueue,
		publisher:  publishers,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		hub:        hub,
		now:        time.Now,
	}
	return d.runLoop(ctx, tick, sigCh)
}

// daemon ties the receive path to its consumers.
type daemon struct {
	source     gpio.Source
	timing     protocol.Timing
	queueSize  int
	publisher  publish.Publisher
	mqttStatus publish.ConnectionStatus
	tracker    *status.Tracker
	hub        *web.Hub
	now        func() time.Time
}

// runLoop decodes until a signal arrives or the source ends, publishing
// STARTUP, HEARTBEAT and SHUTDOWN events around it.
func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumers := []func(protocol.Value){d.tracker.Observe, d.publishValue}
	if d.hub != nil {
		consumers = append(consumers, d.hub.Broadcast)
	}
	dispatcher := bus.NewDispatcher(d.queueSize, consumers...)

	decoder := protocol.NewDecoder(d.timing,
		protocol.WithClock(d.now),
		protocol.WithLogger(log.Logger),
		protocol.WithHandler(dispatcher.Handle),
	)
	receiver := bus.NewReceiver(d.source, decoder, func(s protocol.Stats) {
		d.tracker.UpdateStats(s)
		d.tracker.SetDropped(dispatcher.Dropped())
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	recvErr := make(chan error, 1)
	go func() { recvErr <- receiver.Run(ctx) }()

	d.publishSystem("STARTUP", "")

	// stop waits for the receive path to finish before the final event so
	// every decoded value is delivered first.
	stop := func() {
		cancel()
		wg.Wait()
	}

	for {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			d.source.Close()
			<-recvErr
			stop()
			d.publishSystem("SHUTDOWN", signalName(s))
			return nil

		case err := <-recvErr:
			stop()
			if err != nil {
				log.Error().Err(err).Msg("receiver failed")
				d.publishSystem("SHUTDOWN", "RECEIVER_ERROR")
				return err
			}
			log.Info().Msg("source closed")
			d.publishSystem("SHUTDOWN", "SOURCE_CLOSED")
			return nil

		case <-tick:
			snap := d.refresh()
			log.Info().
				Dur("uptime", snap.Uptime().Truncate(time.Second)).
				Int("bytes", snap.Stats.Bytes).
				Int("words", snap.Stats.Words).
				Int("transmitted", snap.Transmitted).
				Msg("heartbeat")
			d.publishSystem("HEARTBEAT", "")
		}
	}
}

func (d *daemon) publishValue(v protocol.Value) {
	if err := d.publisher.Publish(v); err != nil {
		// Don't stop decoding on publish failure
		log.Error().Err(err).Stringer("value", v).Msg("publish error")
	}
}

func (d *daemon) refresh() status.Snapshot {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	return d.tracker.Snapshot()
}

func (d *daemon) publishSystem(event, reason string) {
	snap := d.refresh()
	err := d.publisher.PublishSystem(publish.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Debug().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func brokerDisplay(cfg *config.Config) string {
	if !cfg.MQTT.Enabled {
		return ""
	}
	return cfg.MQTT.Broker
}

func natsDisplay(cfg *config.Config) string {
	if !cfg.NATS.Enabled {
		return ""
	}
	return cfg.NATS.URL
}
