// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Config is the daemon configuration.
type Config struct {
	Bus       BusConfig     `yaml:"bus"`
	Timing    TimingConfig  `yaml:"timing"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	NATS      NATSConfig    `yaml:"nats"`
	HTTP      HTTPConfig    `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Log       LogConfig     `yaml:"log"`
}

// BusConfig selects the GPIO lines and capture batching.
type BusConfig struct {
	Chip          string        `yaml:"chip"`
	RXPin         int           `yaml:"rx_pin"`
	TXPin         int           `yaml:"tx_pin"`
	GlitchFilter  time.Duration `yaml:"glitch_filter"`
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	MaxBatch      int           `yaml:"max_batch"`
	QueueSize     int           `yaml:"queue_size"`
	// DispatchQueue bounds decoded values waiting for consumers.
	DispatchQueue int `yaml:"dispatch_queue"`
}

// TimingConfig holds protocol timing overrides. Durations are in µs
// except TransactionReset.
type TimingConfig struct {
	PreambleMin      uint32        `yaml:"preamble_min"`
	PreambleMax      uint32        `yaml:"preamble_max"`
	StartMin         uint32        `yaml:"start_min"`
	StartMax         uint32        `yaml:"start_max"`
	BitOneLow        uint32        `yaml:"bit_one_low"`
	BitZeroLow       uint32        `yaml:"bit_zero_low"`
	BitPeriod        uint32        `yaml:"bit_period"`
	SyncLong         uint32        `yaml:"sync_long"`
	SyncShort        uint32        `yaml:"sync_short"`
	TransactionReset time.Duration `yaml:"transaction_reset"`
}

// MQTTConfig configures the MQTT publisher and send-command topic.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Command     bool   `yaml:"command"`
	Buffer      int    `yaml:"buffer"`
}

// NATSConfig configures the optional NATS publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	t := protocol.DefaultTiming()
	return &Config{
		Bus: BusConfig{
			Chip:          gpio.DefaultChip,
			RXPin:         gpio.DefaultRXPin,
			TXPin:         gpio.DefaultTXPin,
			GlitchFilter:  100 * time.Microsecond,
			IdleThreshold: 60 * time.Millisecond,
			MaxBatch:      64,
			QueueSize:     16,
			DispatchQueue: 64,
		},
		Timing: TimingConfig{
			PreambleMin:      t.Preamble.Min,
			PreambleMax:      t.Preamble.Max,
			StartMin:         t.Start.Min,
			StartMax:         t.Start.Max,
			BitOneLow:        t.BitOneLow,
			BitZeroLow:       t.BitZeroLow,
			BitPeriod:        t.BitPeriod,
			SyncLong:         t.SyncLong,
			SyncShort:        t.SyncShort,
			TransactionReset: t.TransactionReset,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "vevor/bus",
			Command:     true,
			Buffer:      256,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "vevor.bus",
		},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Heartbeat: 15 * time.Minute,
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Parse reads YAML from r over the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if broker := os.Getenv("VEVOR_MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}
	if url := os.Getenv("VEVOR_NATS_URL"); url != "" {
		c.NATS.URL = url
		c.NATS.Enabled = true
	}
	if addr := os.Getenv("VEVOR_HTTP_ADDR"); addr != "" {
		c.HTTP.Addr = addr
	}
	if level := os.Getenv("VEVOR_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// ProtocolTiming converts the timing section.
func (c *Config) ProtocolTiming() protocol.Timing {
	t := c.Timing
	return protocol.Timing{
		Preamble:         protocol.Window{Min: t.PreambleMin, Max: t.PreambleMax},
		Start:            protocol.Window{Min: t.StartMin, Max: t.StartMax},
		BitOneLow:        t.BitOneLow,
		BitZeroLow:       t.BitZeroLow,
		BitPeriod:        t.BitPeriod,
		SyncLong:         t.SyncLong,
		SyncShort:        t.SyncShort,
		TransactionReset: t.TransactionReset,
	}
}

// Capture returns the capture settings for the RX line.
func (c *Config) Capture() gpio.CaptureConfig {
	return gpio.CaptureConfig{
		Chip:          c.Bus.Chip,
		Offset:        c.Bus.RXPin,
		GlitchFilter:  c.Bus.GlitchFilter,
		IdleThreshold: c.Bus.IdleThreshold,
		MaxBatch:      c.Bus.MaxBatch,
		QueueSize:     c.Bus.QueueSize,
	}
}

// Validate reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.Bus.Chip == "" {
		errs = append(errs, errors.New("bus.chip is required"))
	}
	if c.Bus.RXPin < 0 || c.Bus.TXPin < 0 {
		errs = append(errs, errors.New("bus pins must be non-negative"))
	}
	if c.Bus.RXPin == c.Bus.TXPin {
		errs = append(errs, fmt.Errorf("bus.rx_pin and bus.tx_pin are both %d", c.Bus.RXPin))
	}
	if c.Bus.GlitchFilter < 0 {
		errs = append(errs, errors.New("bus.glitch_filter must not be negative"))
	}
	startMax := time.Duration(c.Timing.StartMax) * time.Microsecond
	if c.Bus.IdleThreshold <= startMax {
		errs = append(errs, fmt.Errorf("bus.idle_threshold %v must exceed the start pulse (%v)", c.Bus.IdleThreshold, startMax))
	}
	if c.Bus.MaxBatch <= 0 || c.Bus.QueueSize <= 0 || c.Bus.DispatchQueue <= 0 {
		errs = append(errs, errors.New("bus.max_batch, bus.queue_size and bus.dispatch_queue must be positive"))
	}
	if err := c.ProtocolTiming().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("timing: %w", err))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.Buffer <= 0 {
			errs = append(errs, errors.New("mqtt.buffer must be positive"))
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
