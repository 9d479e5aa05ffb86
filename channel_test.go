package bttherm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannel_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewChannel(0) })
}

func TestChannel_DropOnFull(t *testing.T) {
	c := NewChannel(5)
	assert.Equal(t, 5, c.Cap())

	for i := 0; i < 5; i++ {
		assert.True(t, c.TrySend(Reading{Temperature: float64(i)}))
	}
	for i := 0; i < 3; i++ {
		assert.False(t, c.TrySend(Reading{Temperature: 100}))
		assert.Equal(t, 5, c.Len())
	}

	// The oldest readings survive, in order
	for i := 0; i < 5; i++ {
		r, ok := c.Receive(context.Background(), time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, float64(i), r.Temperature)
	}
	assert.Equal(t, 0, c.Len())
}

func TestChannel_ReceiveTimeout(t *testing.T) {
	c := NewChannel(1)

	start := time.Now()
	_, ok := c.Receive(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestChannel_ReceiveWaitsForProducer(t *testing.T) {
	c := NewChannel(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.TrySend(Reading{Temperature: 21.5, BatteryLevel: 83})
	}()

	r, ok := c.Receive(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, Reading{Temperature: 21.5, BatteryLevel: 83}, r)
}

func TestChannel_ReceiveCancelled(t *testing.T) {
	c := NewChannel(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := c.Receive(ctx, time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestChannel_Clear(t *testing.T) {
	c := NewChannel(5)
	assert.Equal(t, 0, c.Clear())

	for i := 0; i < 3; i++ {
		c.TrySend(Reading{Temperature: float64(i)})
	}
	assert.Equal(t, 3, c.Clear())
	assert.Equal(t, 0, c.Len())

	_, ok := c.Receive(context.Background(), 5*time.Millisecond)
	assert.False(t, ok)
}

func TestChannel_ConcurrentClear(t *testing.T) {
	c := NewChannel(5)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.TrySend(Reading{Temperature: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Receive(context.Background(), 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Clear()
			assert.LessOrEqual(t, c.Len(), c.Cap())
		}
	}()
	wg.Wait()

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
