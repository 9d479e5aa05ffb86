package bttherm

import (
	"context"
	"errors"
	"time"
)

// Notifier drains the channel and pushes every reading to the transport's characteristics
type Notifier struct {
	channel     *Channel
	temperature Characteristic
	battery     Characteristic

	pollTimeout time.Duration
	pacingDelay time.Duration

	onSent func(Reading)

	logger Logger
}

// NewNotifier instantiates a new notifier
func NewNotifier(channel *Channel, temperature, battery Characteristic, cfg Config, logger Logger) *Notifier {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &Notifier{
		channel:     channel,
		temperature: temperature,
		battery:     battery,
		pollTimeout: cfg.PollTimeout,
		pacingDelay: cfg.PacingDelay,
		logger:      logger,
	}
}

// Run waits for readings and notifies them until ctx is cancelled. A reading that has
// been dequeued but not yet sent when ctx is cancelled is discarded.
func (n *Notifier) Run(ctx context.Context) {
	for {
		if reading, ok := n.channel.Receive(ctx, n.pollTimeout); ok {
			n.Send(ctx, reading)
		}

		if err := sleep(ctx, n.pacingDelay); err != nil {
			return
		}
	}
}

// Send encodes a reading and notifies the temperature and the battery characteristic (in
// that order). It returns false if ctx was cancelled before the reading was fully sent.
func (n *Notifier) Send(ctx context.Context, reading Reading) bool {
	if ctx.Err() != nil {
		n.logger.Debugf("discarding in-flight reading (%s)", reading)
		return false
	}

	tempPayload, clipped := EncodeTemperature(reading.Temperature)
	if clipped {
		n.logger.Warnf("temperature %.2f°C exceeds encodable range, saturating", reading.Temperature)
	}
	n.notify("temperature", n.temperature, tempPayload)

	if ctx.Err() != nil {
		n.logger.Debugf("discarding battery notification of in-flight reading (%s)", reading)
		return false
	}
	batteryPayload := EncodeBattery(reading.BatteryLevel)
	n.notify("battery", n.battery, batteryPayload)

	n.logger.Debugf("sent reading - T: %.2f°C (raw: % x), B: %d%%", reading.Temperature, tempPayload, reading.BatteryLevel)
	if n.onSent != nil {
		n.onSent(reading)
	}

	return true
}

func (n *Notifier) notify(name string, c Characteristic, payload []byte) {
	c.SetValue(payload)
	if err := c.Notify(); err != nil {
		if errors.Is(err, ErrNotSubscribed) {
			n.logger.Debugf("skipping %s notification: %s", name, err)
			return
		}
		n.logger.Warnf("failed to notify %s characteristic: %s", name, err)
	}
}
