package bttherm

import (
	"context"
	"fmt"
	"time"
)

// AnalogInput denotes a blocking source of raw ADC codes
type AnalogInput interface {
	ReadRaw() (int32, error)
}

// Sampler periodically acquires a debounced temperature, drives the indicator LEDs and
// pushes the resulting reading onto the channel
type Sampler struct {
	input      AnalogInput
	indicators *Indicators
	channel    *Channel

	cfg       SamplerConfig
	vref      float64
	fullScale float64

	onProduced func(Reading, bool)

	logger Logger
}

// NewSampler instantiates a new sampler
func NewSampler(input AnalogInput, indicators *Indicators, channel *Channel, cfg Config, logger Logger) *Sampler {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &Sampler{
		input:      input,
		indicators: indicators,
		channel:    channel,
		cfg:        cfg.Sampler,
		vref:       cfg.ADC.ReferenceVoltage,
		fullScale:  cfg.ADC.FullScaleCode,
		logger:     logger,
	}
}

// Run samples once per period until ctx is cancelled. The first cycle starts immediately,
// subsequent cycles are aligned to the start time (a slow cycle does not shift the
// schedule).
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		if _, err := s.Sample(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warnf("skipping sampling cycle: %s", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sample performs a single sampling cycle: acquire, average, convert, classify and
// enqueue. The reading is returned even if it was dropped due to a full channel.
func (s *Sampler) Sample(ctx context.Context) (Reading, error) {
	avg, err := s.acquire(ctx)
	if err != nil {
		return Reading{}, err
	}

	// 10mV/°C, scaled before dividing so that exact codes yield exact temperatures
	reading := Reading{
		Temperature:  avg * s.vref * 100.0 / s.fullScale,
		BatteryLevel: s.cfg.BatteryLevel,
	}
	s.logger.Debugf("raw ADC (average): %.1f, voltage: %.3fV, temperature: %.2f°C", avg, avg*s.vref/s.fullScale, reading.Temperature)

	// Do not touch any shared state once teardown has started
	if err := ctx.Err(); err != nil {
		return reading, err
	}

	if err := s.indicators.Threshold(reading.Alert(s.cfg.Threshold)); err != nil {
		s.logger.Warnf("failed to update indicators: %s", err)
	}

	queued := s.channel.TrySend(reading)
	if !queued {
		s.logger.Debugf("channel full, dropping reading (%s)", reading)
	}
	if s.onProduced != nil {
		s.onProduced(reading, queued)
	}

	return reading, nil
}

func (s *Sampler) acquire(ctx context.Context) (float64, error) {
	var sum int64
	for i := 0; i < s.cfg.SampleCount; i++ {
		raw, err := s.input.ReadRaw()
		if err != nil {
			return 0, fmt.Errorf("failed to read analog input (sample %d/%d): %w", i+1, s.cfg.SampleCount, err)
		}
		sum += int64(raw)

		if i == s.cfg.SampleCount-1 {
			break
		}
		if err := sleep(ctx, s.cfg.Spacing); err != nil {
			return 0, err
		}
	}

	return float64(sum) / float64(s.cfg.SampleCount), nil
}

// sleep pauses for d or until ctx is cancelled, whichever happens first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
