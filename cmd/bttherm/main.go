package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fako1024/bttherm"
	"github.com/fako1024/bttherm/bluez"
	"github.com/fako1024/bttherm/hci"
	"github.com/fako1024/bttherm/hw"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	backendHCI   = "hci"
	backendBlueZ = "bluez"
)

type config struct {
	configPath string
	backend    string
	name       string
	simulate   bool
	debug      bool
}

var cfg config

// rootCmd runs the temperature sensing peripheral until interrupted
var rootCmd = &cobra.Command{
	Use:   "bttherm",
	Short: "BLE temperature sensor peripheral",
	Long: `Advertises a GATT temperature service and, while a central is connected, samples
the analog temperature sensor and notifies temperature and battery level readings.`,
	Args: cobra.NoArgs,
	RunE: run,
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(c)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().StringVarP(&cfg.configPath, "config", "c", "", "path to YAML configuration file (defaults apply if unset)")
	rootCmd.PersistentFlags().StringVar(&cfg.name, "name", "", "advertised device name (overrides configuration)")
	rootCmd.Flags().StringVar(&cfg.backend, "backend", backendHCI, "bluetooth backend (hci, bluez)")
	rootCmd.Flags().BoolVar(&cfg.simulate, "simulate", false, "use simulated LEDs and ADC instead of real hardware")
	rootCmd.Flags().BoolVar(&cfg.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(configCmd)
}

func run(_ *cobra.Command, _ []string) error {
	logger := bttherm.NewDefaultLogger(cfg.debug)

	c, err := loadConfig()
	if err != nil {
		return err
	}

	transport, err := newTransport(c, logger)
	if err != nil {
		return err
	}

	var h *hw.Hardware
	if cfg.simulate {
		logger.Infof("using simulated hardware")
		h = hw.Simulated(c)
	} else if h, err = hw.Open(c); err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Errorf("failed to release hardware: %s", err)
		}
	}()

	p, err := bttherm.New(transport, h.ADC, h.Alert, h.Normal,
		bttherm.WithConfig(c),
		bttherm.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize peripheral: %w", err)
	}

	stateChan := make(chan bttherm.ConnectionStatus, 8)
	p.SetStateChangeChannel(stateChan)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-stateChan:
				logger.Infof("state change: %s (peer: `%s`)", st.State, st.Peer)
				if st.State == bttherm.StateDisconnected {
					stats := p.Stats()
					logger.Infof("session stats: %d session(s), %d reading(s) produced, %d dropped, %d sent",
						stats.Sessions, stats.Produced, stats.Dropped, stats.Sent)
				}
			}
		}
	}()

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("got signal, peripheral stopped")

	return nil
}

func loadConfig() (bttherm.Config, error) {
	c := bttherm.DefaultConfig()
	if cfg.configPath != "" {
		var err error
		if c, err = bttherm.LoadConfig(cfg.configPath); err != nil {
			return c, err
		}
	}
	if cfg.name != "" {
		c.DeviceName = cfg.name
	}

	return c, c.Validate()
}

func newTransport(c bttherm.Config, logger bttherm.Logger) (bttherm.Transport, error) {
	switch cfg.backend {
	case backendHCI:
		return hci.New(c, hci.WithLogger(logger))
	case backendBlueZ:
		return bluez.New(c, bluez.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unsupported backend `%s` (want %s or %s)", cfg.backend, backendHCI, backendBlueZ)
	}
}
