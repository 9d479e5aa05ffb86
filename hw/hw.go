// Package hw binds the peripheral to physical I/O via periph.io: two GPIO outputs for
// the indicator LEDs and an ADS1115 analog-to-digital converter on the I²C bus
package hw

import (
	"fmt"

	"github.com/fako1024/bttherm"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// Hardware denotes the I/O collaborators of the peripheral
type Hardware struct {
	Alert  gpio.PinOut
	Normal gpio.PinOut
	ADC    bttherm.AnalogInput

	closers []func() error
}

// Open initializes the host drivers and acquires the LED pins and the ADC channel
func Open(cfg bttherm.Config) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host drivers: %w", err)
	}

	alert, err := outputPin(cfg.Pins.Alert)
	if err != nil {
		return nil, err
	}
	normal, err := outputPin(cfg.Pins.Normal)
	if err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(cfg.ADC.Bus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I²C bus `%s`: %w", cfg.ADC.Bus, err)
	}

	hw := &Hardware{
		Alert:   alert,
		Normal:  normal,
		closers: []func() error{bus.Close},
	}

	adc, err := openADC(bus, cfg.ADC)
	if err != nil {
		return nil, multierr.Append(err, hw.Close())
	}
	hw.ADC = adc
	hw.closers = append(hw.closers, adc.pin.Halt)

	return hw, nil
}

// Close releases the ADC channel and the I²C bus
func (h *Hardware) Close() (err error) {
	for i := len(h.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.closers[i]())
	}
	h.closers = nil
	return
}

// ADC denotes a single channel of an analog-to-digital converter
type ADC struct {
	pin analog.PinADC
}

// NewADC wraps an arbitrary periph analog input pin
func NewADC(pin analog.PinADC) *ADC {
	return &ADC{pin: pin}
}

// ReadRaw performs a single conversion and returns the raw code
func (a *ADC) ReadRaw() (int32, error) {
	sample, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", a.pin, err)
	}
	return sample.Raw, nil
}

////////////////////////////////////////////////////////////////////////////////

var adcChannels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

func openADC(bus i2c.Bus, cfg bttherm.ADCConfig) (*ADC, error) {
	if cfg.Channel < 0 || cfg.Channel >= len(adcChannels) {
		return nil, fmt.Errorf("invalid ADC channel %d (want 0-%d)", cfg.Channel, len(adcChannels)-1)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ADS1115: %w", err)
	}

	maxVoltage := physic.ElectricPotential(cfg.ReferenceVoltage * float64(physic.Volt))
	pin, err := dev.PinForChannel(adcChannels[cfg.Channel], maxVoltage, 860*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to configure ADC channel %d: %w", cfg.Channel, err)
	}

	return NewADC(pin), nil
}

func outputPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("failed to find GPIO pin `%s`", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to configure GPIO pin `%s` as output: %w", name, err)
	}
	return p, nil
}
