package bttherm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

// Peripheral denotes a BLE temperature sensor, streaming readings to a connected central
type Peripheral struct {
	cfg Config

	transport  Transport
	channel    *Channel
	indicators *Indicators
	sampler    *Sampler
	notifier   *Notifier
	controller *Controller

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus
	handlerMu          sync.RWMutex

	sessions *atomic.Uint64
	produced *atomic.Uint64
	dropped  *atomic.Uint64
	sent     *atomic.Uint64

	closeOnce sync.Once

	logger Logger
}

// New instantiates a new Peripheral on top of the given transport, analog input and
// indicator outputs, executing functional options, if any
func New(transport Transport, input AnalogInput, alert, normal gpio.PinOut, options ...func(*Peripheral)) (*Peripheral, error) {

	// Initialize a new instance of a Peripheral
	p := &Peripheral{
		cfg:       DefaultConfig(),
		transport: transport,
		sessions:  atomic.NewUint64(0),
		produced:  atomic.NewUint64(0),
		dropped:   atomic.NewUint64(0),
		sent:      atomic.NewUint64(0),
		logger:    &NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(p)
	}

	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	p.channel = NewChannel(p.cfg.ChannelCapacity)
	p.indicators = NewIndicators(alert, normal)

	p.sampler = NewSampler(input, p.indicators, p.channel, p.cfg, p.logger)
	p.sampler.onProduced = p.countProduced

	p.notifier = NewNotifier(p.channel, transport.Temperature(), transport.Battery(), p.cfg, p.logger)
	p.notifier.onSent = func(Reading) { p.sent.Inc() }

	p.controller = NewController(transport, p.sampler, p.notifier, p.channel, p.indicators, p.cfg, p.logger)
	p.controller.onStateChange = p.setStatus

	return p, nil
}

// Run starts the transport, shows the power-on indicator pattern and advertises the
// service. It blocks until ctx is cancelled and closes the peripheral before returning.
func (p *Peripheral) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, p.Close())
	}()

	if err := p.indicators.Disconnected(); err != nil {
		p.logger.Warnf("failed to set power-on indicators: %s", err)
	}

	if err := p.transport.Start(p.controller.HandleEvent); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	if err := p.transport.Advertise(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	p.logger.Infof("advertising `%s`, waiting for connection", p.cfg.DeviceName)

	<-ctx.Done()
	return nil
}

// ConnectionStatus returns the current status of the peripheral
func (p *Peripheral) ConnectionStatus() ConnectionStatus {
	return ConnectionStatus{
		Peer:  p.controller.Peer(),
		State: p.controller.State(),
	}
}

// Stats returns the counters collected since the peripheral was created
func (p *Peripheral) Stats() Stats {
	return Stats{
		Sessions: p.sessions.Load(),
		Produced: p.produced.Load(),
		Dropped:  p.dropped.Load(),
		Sent:     p.sent.Load(),
	}
}

// Config returns the configuration in use
func (p *Peripheral) Config() Config {
	return p.cfg
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (p *Peripheral) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that state changes are put on (non-blocking)
func (p *Peripheral) SetStateChangeChannel(ch chan ConnectionStatus) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.stateChangeChan = ch
}

// Close stops all measurement tasks and the transport
func (p *Peripheral) Close() (err error) {
	p.closeOnce.Do(func() {
		p.controller.Close()
		if e := p.indicators.Disconnected(); e != nil {
			err = multierr.Append(err, e)
		}
		if e := p.transport.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close transport: %w", e))
		}
	})
	return
}

////////////////////////////////////////////////////////////////////////////////

func (p *Peripheral) setStatus(status ConnectionStatus) {
	if status.State == StateConnected {
		p.sessions.Inc()
	}

	p.handlerMu.RLock()
	defer p.handlerMu.RUnlock()

	// Call handler function, if any
	if p.stateChangeHandler != nil {
		p.stateChangeHandler(status)
	}

	// Put state change on channel, if any
	if p.stateChangeChan != nil {
		select {
		case p.stateChangeChan <- status:
		default:
		}
	}
}

func (p *Peripheral) countProduced(_ Reading, queued bool) {
	p.produced.Inc()
	if !queued {
		p.dropped.Inc()
	}
}
