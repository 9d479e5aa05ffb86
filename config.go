package bttherm

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate if a configuration value cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config denotes the static configuration of the peripheral, read once at startup
type Config struct {
	DeviceName string `yaml:"device_name" default:"ESP32_TempSensor"`

	ServiceUUID     string `yaml:"service_uuid" default:"4fafc201-1fb5-459e-8fcc-c5c9c331914b"`
	TemperatureUUID string `yaml:"temperature_uuid" default:"beb5483e-36e1-4688-b7f5-ea07361b26a8"`
	BatteryUUID     string `yaml:"battery_uuid" default:"beb5483e-36e1-4688-b7f5-ea07361b26a9"`

	Pins    PinConfig     `yaml:"pins"`
	ADC     ADCConfig     `yaml:"adc"`
	Sampler SamplerConfig `yaml:"sampler"`
	Link    ConnParams    `yaml:"link"`

	ChannelCapacity int           `yaml:"channel_capacity" default:"5"`
	PollTimeout     time.Duration `yaml:"poll_timeout" default:"100ms"`
	PacingDelay     time.Duration `yaml:"pacing_delay" default:"100ms"`
	SettleDelay     time.Duration `yaml:"settle_delay" default:"500ms"`
}

// PinConfig denotes the names of the two indicator outputs (as known to gpioreg)
type PinConfig struct {
	Alert  string `yaml:"alert" default:"GPIO27"`
	Normal string `yaml:"normal" default:"GPIO22"`
}

// ADCConfig denotes the analog input and its linear transfer function
type ADCConfig struct {
	Bus              string  `yaml:"bus" default:""`
	Channel          int     `yaml:"channel" default:"0"`
	ReferenceVoltage float64 `yaml:"reference_voltage" default:"3.3"`
	FullScaleCode    float64 `yaml:"full_scale_code" default:"4096"`
	SimulatedCode    int32   `yaml:"simulated_code" default:"310"`
}

// SamplerConfig denotes the timing and classification parameters of the sampler
type SamplerConfig struct {
	Period       time.Duration `yaml:"period" default:"2s"`
	SampleCount  int           `yaml:"sample_count" default:"10"`
	Spacing      time.Duration `yaml:"spacing" default:"1ms"`
	Threshold    float64       `yaml:"threshold" default:"30.0"`
	BatteryLevel uint8         `yaml:"battery_level" default:"83"`
}

// ConnParams denotes the link tuning parameters requested after a central connects
type ConnParams struct {
	MinInterval        time.Duration `yaml:"min_interval" default:"30ms"`
	MaxInterval        time.Duration `yaml:"max_interval" default:"50ms"`
	Latency            uint16        `yaml:"latency" default:"0"`
	SupervisionTimeout time.Duration `yaml:"supervision_timeout" default:"4s"`
}

// DefaultConfig returns the reference deployment configuration
func DefaultConfig() Config {
	var cfg Config
	defaults.SetDefaults(&cfg)
	return cfg
}

// LoadConfig reads a YAML file and overlays it onto the default configuration
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file `%s`: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration can drive the sampler and notifier
func (c Config) Validate() error {
	switch {
	case c.ChannelCapacity <= 0:
		return fmt.Errorf("%w: channel capacity must be > 0 (have %d)", ErrInvalidConfig, c.ChannelCapacity)
	case c.Sampler.SampleCount <= 0:
		return fmt.Errorf("%w: sample count must be > 0 (have %d)", ErrInvalidConfig, c.Sampler.SampleCount)
	case c.Sampler.Period <= 0:
		return fmt.Errorf("%w: sampling period must be > 0 (have %v)", ErrInvalidConfig, c.Sampler.Period)
	case c.Sampler.BatteryLevel > 100:
		return fmt.Errorf("%w: battery level must be within 0-100 (have %d)", ErrInvalidConfig, c.Sampler.BatteryLevel)
	case c.ADC.FullScaleCode <= 0:
		return fmt.Errorf("%w: ADC full scale code must be > 0 (have %v)", ErrInvalidConfig, c.ADC.FullScaleCode)
	case c.PollTimeout <= 0, c.PacingDelay < 0, c.SettleDelay < 0:
		return fmt.Errorf("%w: poll timeout must be > 0, pacing / settle delays must not be negative", ErrInvalidConfig)
	case c.Link.MinInterval > c.Link.MaxInterval:
		return fmt.Errorf("%w: link min interval %v exceeds max interval %v", ErrInvalidConfig, c.Link.MinInterval, c.Link.MaxInterval)
	}

	return nil
}
