// Command vevor-bus decodes the Vevor heater's single-wire PWM bus, publishes
// the decoded values and transmits bytes on request.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vevorbus/vevor-bus/internal/config"
	"github.com/vevorbus/vevor-bus/internal/logging"
)

const version = "0.3.0"

type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "vevor-bus",
		Short: "Vevor heater PWM bus decoder",
		Long: `vevor-bus - decode and generate the pulse-width modulated bus between a
Vevor diesel heater and its controller.

The receive line is captured with kernel edge timestamps, decoded into bytes
and 16-bit values, and published to MQTT and NATS. The status page shows the
latest values; bytes can be sent from the page, the API or the MQTT send topic.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults apply when omitted)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log.format (console, json)")

	root.AddCommand(
		newRunCmd(opts),
		newSendCmd(opts),
		newEncodeCmd(opts),
		newRecordCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

// load reads, overrides and validates the configuration, then sets up logging.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
