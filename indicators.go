package bttherm

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

// Indicators drives the alert / normal LED pair. At any time exactly one of the two
// outputs is driven high.
//
// While the peripheral is disconnected the pair is held in the "disconnected" pattern
// and threshold updates from a sampler that is being torn down are ignored.
type Indicators struct {
	alert  gpio.PinOut
	normal gpio.PinOut

	mu    sync.Mutex
	armed bool
}

// NewIndicators instantiates a new LED pair
func NewIndicators(alert, normal gpio.PinOut) *Indicators {
	return &Indicators{
		alert:  alert,
		normal: normal,
	}
}

// Connected shows the "connected" pattern (alert off, normal on) and accepts threshold
// updates until the next call to Disconnected
func (i *Indicators) Connected() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.armed = true
	return i.set(false)
}

// Disconnected shows the "disconnected" pattern (alert on, normal off) and ignores
// threshold updates until the next call to Connected
func (i *Indicators) Disconnected() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.armed = false
	return i.set(true)
}

// Threshold shows the result of a threshold classification. It is a no-op unless the
// indicators are in the connected state.
func (i *Indicators) Threshold(alert bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.armed {
		return nil
	}
	return i.set(alert)
}

func (i *Indicators) set(alert bool) (err error) {
	if e := i.alert.Out(gpio.Level(alert)); e != nil {
		err = multierr.Append(err, fmt.Errorf("failed to set alert LED: %w", e))
	}
	if e := i.normal.Out(gpio.Level(!alert)); e != nil {
		err = multierr.Append(err, fmt.Errorf("failed to set normal LED: %w", e))
	}
	return
}
