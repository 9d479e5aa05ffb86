package bttherm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Controller is the connection lifecycle state machine. It exclusively owns the sampler
// and notifier tasks: both run if and only if the state is StateConnected.
//
// All transitions go through HandleEvent, which is expected to be called on the goroutine
// delivering transport events and runs each transition to completion before returning.
// Events are expected to be delivered sequentially.
type Controller struct {
	transport  Transport
	sampler    *Sampler
	notifier   *Notifier
	channel    *Channel
	indicators *Indicators

	link        ConnParams
	settleDelay time.Duration

	mu           sync.Mutex
	closed       bool
	state        *atomic.Int32
	peer         *atomic.String
	samplerTask  *task
	notifierTask *task

	onStateChange func(ConnectionStatus)

	ctx    context.Context
	cancel context.CancelFunc

	logger Logger
}

// NewController instantiates a new lifecycle controller in StateDisconnected
func NewController(transport Transport, sampler *Sampler, notifier *Notifier, channel *Channel, indicators *Indicators, cfg Config, logger Logger) *Controller {
	if logger == nil {
		logger = &NullLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		transport:   transport,
		sampler:     sampler,
		notifier:    notifier,
		channel:     channel,
		indicators:  indicators,
		link:        cfg.Link,
		settleDelay: cfg.SettleDelay,
		state:       atomic.NewInt32(int32(StateDisconnected)),
		peer:        atomic.NewString(""),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// State returns the current connection state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Peer returns the identifier of the connected central (empty while disconnected)
func (c *Controller) Peer() string {
	return c.peer.Load()
}

// Running returns if the sampler and notifier tasks are currently running
func (c *Controller) Running() (sampler, notifier bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.samplerTask != nil, c.notifierTask != nil
}

// HandleEvent is the single entry point for link-layer events. State changes are
// published after the controller has been unlocked, so the state change callback may
// query or close the controller.
func (c *Controller) HandleEvent(ev Event) {
	status, changed := c.transition(ev)
	if !changed {
		return
	}
	c.publish(status)

	if status.State == StateDisconnected {
		c.resumeAdvertising()
	}
}

// Close stops any running tasks and aborts a pending re-advertisement. A connected
// session is terminated (the state becomes StateDisconnected) and all subsequent events
// are ignored.
func (c *Controller) Close() {
	c.cancel()

	c.mu.Lock()
	wasConnected := c.State() == StateConnected
	c.closed = true
	c.stopTasks()
	c.channel.Clear()
	if wasConnected {
		if err := c.indicators.Disconnected(); err != nil {
			c.logger.Warnf("failed to set disconnected indicators: %s", err)
		}
		c.peer.Store("")
		c.state.Store(int32(StateDisconnected))
	}
	c.mu.Unlock()

	if wasConnected {
		c.publish(ConnectionStatus{State: StateDisconnected})
	}
}

func (c *Controller) transition(ev Event) (ConnectionStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Debugf("ignoring %s event from `%s` on closed controller", ev.Type, ev.Peer)
		return ConnectionStatus{}, false
	}

	switch ev.Type {
	case EventConnect:
		if c.State() == StateConnected {
			c.logger.Warnf("ignoring connect event from `%s` while connected to `%s`", ev.Peer, c.Peer())
			return ConnectionStatus{}, false
		}
		c.connect(ev.Peer)
	case EventDisconnect:
		if c.State() == StateDisconnected {
			c.logger.Debugf("ignoring disconnect event from `%s` while disconnected", ev.Peer)
			return ConnectionStatus{}, false
		}
		c.disconnect(ev.Peer)
	default:
		c.logger.Warnf("ignoring unknown event type %v", ev.Type)
		return ConnectionStatus{}, false
	}

	return ConnectionStatus{
		Peer:  c.Peer(),
		State: c.State(),
	}, true
}

func (c *Controller) connect(peer string) {
	c.logger.Infof("central `%s` connected, starting measurement tasks", peer)

	if err := c.indicators.Connected(); err != nil {
		c.logger.Warnf("failed to set connected indicators: %s", err)
	}

	if err := c.transport.UpdateConnParams(c.link); err != nil {
		c.logger.Warnf("failed to apply link parameters (%+v), continuing with transport defaults: %s", c.link, err)
	}

	c.samplerTask = startTask(c.ctx, "sampler", c.sampler.Run)
	c.notifierTask = startTask(c.ctx, "notifier", c.notifier.Run)

	c.peer.Store(peer)
	c.state.Store(int32(StateConnected))
}

func (c *Controller) disconnect(peer string) {
	c.logger.Infof("central `%s` disconnected, stopping measurement tasks", peer)

	if err := c.indicators.Disconnected(); err != nil {
		c.logger.Warnf("failed to set disconnected indicators: %s", err)
	}

	c.stopTasks()

	if n := c.channel.Clear(); n > 0 {
		c.logger.Debugf("discarded %d pending reading(s)", n)
	}

	c.peer.Store("")
	c.state.Store(int32(StateDisconnected))
}

// resumeAdvertising waits for the settle delay and restarts advertising, unless the
// controller is closed in the meantime
func (c *Controller) resumeAdvertising() {
	if err := sleep(c.ctx, c.settleDelay); err != nil {
		c.logger.Debugf("controller closed, not resuming advertising")
		return
	}
	if err := c.transport.Advertise(); err != nil {
		c.logger.Errorf("failed to resume advertising: %s", err)
		return
	}
	c.logger.Infof("advertising resumed, waiting for connection")
}

func (c *Controller) stopTasks() {
	c.samplerTask.stop()
	c.samplerTask = nil
	c.notifierTask.stop()
	c.notifierTask = nil
}

func (c *Controller) publish(status ConnectionStatus) {
	if c.onStateChange != nil {
		c.onStateChange(status)
	}
}
