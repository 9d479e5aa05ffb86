package hw

import (
	"math/rand"
	"sync"

	"github.com/fako1024/bttherm"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Simulated returns hardware for hosts without GPIO / ADC: in-memory LED pins and an ADC
// whose code performs a bounded random walk around cfg.ADC.SimulatedCode
func Simulated(cfg bttherm.Config) *Hardware {
	return &Hardware{
		Alert:  &gpiotest.Pin{N: "ALERT_LED", Num: -1},
		Normal: &gpiotest.Pin{N: "NORMAL_LED", Num: -1},
		ADC:    NewSimulatedADC(cfg.ADC.SimulatedCode, cfg.ADC.SimulatedCode/10, rand.Int63()),
	}
}

// SimulatedADC produces raw codes drifting randomly within [center-spread, center+spread]
type SimulatedADC struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	center  int32
	spread  int32
	current int32
}

// NewSimulatedADC instantiates a new simulated ADC
func NewSimulatedADC(center, spread int32, seed int64) *SimulatedADC {
	if spread < 0 {
		spread = -spread
	}
	return &SimulatedADC{
		rnd:     rand.New(rand.NewSource(seed)),
		center:  center,
		spread:  spread,
		current: center,
	}
}

// ReadRaw returns the next simulated code
func (s *SimulatedADC) ReadRaw() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spread == 0 {
		return s.center, nil
	}

	s.current += int32(s.rnd.Intn(3)) - 1
	if s.current > s.center+s.spread {
		s.current = s.center + s.spread
	}
	if s.current < s.center-s.spread {
		s.current = s.center - s.spread
	}

	return s.current, nil
}
