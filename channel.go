package bttherm

import (
	"context"
	"time"
)

// Channel is a bounded FIFO conduit of readings between the sampler (producer) and the
// notifier (consumer).
//
// Producers never block: if the buffer is full the new reading is dropped (the opposite
// of an overwrite-oldest ring). Clear empties the buffer and may be called concurrently
// with a producer and / or consumer, or with none of them running.
type Channel struct {
	ch chan Reading
}

// NewChannel instantiates a new channel with the given capacity
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		panic("bttherm: channel capacity must be > 0")
	}
	return &Channel{ch: make(chan Reading, capacity)}
}

// TrySend attempts to insert a reading without blocking.
// Returns false if the channel is full and the reading was dropped.
func (c *Channel) TrySend(r Reading) bool {
	select {
	case c.ch <- r:
		return true
	default:
		return false
	}
}

// Receive waits up to timeout for the next reading. The ok result is false if the
// timeout elapsed or ctx was cancelled before a reading became available.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (r Reading, ok bool) {

	// Prefer a pending reading over an already elapsed deadline
	select {
	case r = <-c.ch:
		return r, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r = <-c.ch:
		return r, true
	case <-timer.C:
	case <-ctx.Done():
	}

	return Reading{}, false
}

// Clear discards all pending readings and returns how many were discarded
func (c *Channel) Clear() (n int) {
	for {
		select {
		case <-c.ch:
			n++
		default:
			return
		}
	}
}

// Len returns the number of pending readings
func (c *Channel) Len() int {
	return len(c.ch)
}

// Cap returns the capacity of the channel
func (c *Channel) Cap() int {
	return cap(c.ch)
}
