package hci

import (
	"errors"
	"testing"
	"time"

	"github.com/fako1024/bttherm"
	"github.com/fako1024/gatt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	written [][]byte
	done    bool
	cap     int
	err     error
}

func (m *mockNotifier) Write(data []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.written = append(m.written, append([]byte(nil), data...))
	return len(data), nil
}

func (m *mockNotifier) Done() bool {
	return m.done
}

func (m *mockNotifier) Cap() int {
	return m.cap
}

func TestCharacteristic_NotifyWithoutSubscriber(t *testing.T) {
	c := &characteristic{}
	c.SetValue([]byte{0x4E, 0x0C})

	assert.ErrorIs(t, c.Notify(), bttherm.ErrNotSubscribed)
}

func TestCharacteristic_Notify(t *testing.T) {
	c := &characteristic{}
	n := &mockNotifier{cap: 20}
	c.serveNotify(gatt.Request{}, n)

	c.SetValue([]byte{0x4E, 0x0C})
	require.NoError(t, c.Notify())
	c.SetValue([]byte{0x53})
	require.NoError(t, c.Notify())

	assert.Equal(t, [][]byte{{0x4E, 0x0C}, {0x53}}, n.written)
}

func TestCharacteristic_SetValueCopies(t *testing.T) {
	c := &characteristic{}
	n := &mockNotifier{cap: 20}
	c.serveNotify(gatt.Request{}, n)

	payload := []byte{0x01, 0x02}
	c.SetValue(payload)
	payload[0] = 0xFF

	require.NoError(t, c.Notify())
	assert.Equal(t, []byte{0x01, 0x02}, n.written[0])
}

func TestCharacteristic_NotifyAfterUnsubscribe(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(c *characteristic, n *mockNotifier)
	}{
		{
			name:    "central disconnected",
			prepare: func(c *characteristic, n *mockNotifier) { c.unsubscribe() },
		},
		{
			name:    "central disabled notifications",
			prepare: func(c *characteristic, n *mockNotifier) { n.done = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &characteristic{}
			n := &mockNotifier{cap: 20}
			c.serveNotify(gatt.Request{}, n)
			c.SetValue([]byte{0x53})

			tt.prepare(c, n)

			assert.ErrorIs(t, c.Notify(), bttherm.ErrNotSubscribed)
			assert.Empty(t, n.written)
		})
	}
}

func TestCharacteristic_NotifyErrors(t *testing.T) {
	t.Run("exceeds capacity", func(t *testing.T) {
		c := &characteristic{}
		c.serveNotify(gatt.Request{}, &mockNotifier{cap: 1})
		c.SetValue([]byte{0x4E, 0x0C})

		err := c.Notify()
		require.Error(t, err)
		assert.False(t, errors.Is(err, bttherm.ErrNotSubscribed))
	})

	t.Run("write failure", func(t *testing.T) {
		writeErr := errors.New("write failed")
		c := &characteristic{}
		c.serveNotify(gatt.Request{}, &mockNotifier{cap: 20, err: writeErr})
		c.SetValue([]byte{0x53})

		assert.ErrorIs(t, c.Notify(), writeErr)
	})
}

// mockDevice records the calls of the transport and reports the configured adapter state
// on Init
type mockDevice struct {
	gatt.Device

	states     []gatt.State
	addErr     error
	handlers   int
	services   []*gatt.Service
	advertised []string
	stopped    int
	removed    int
}

func (m *mockDevice) Handle(h ...gatt.Handler) {
	m.handlers += len(h)
}

func (m *mockDevice) Init(stateChanged func(gatt.Device, gatt.State)) error {
	for _, s := range m.states {
		stateChanged(m, s)
	}
	return nil
}

func (m *mockDevice) AddService(s *gatt.Service) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.services = append(m.services, s)
	return nil
}

func (m *mockDevice) AdvertiseNameAndServices(name string, ss []gatt.UUID) error {
	m.advertised = append(m.advertised, name)
	return nil
}

func (m *mockDevice) StopAdvertising() error {
	m.stopped++
	return nil
}

func (m *mockDevice) RemoveAllServices() error {
	m.removed++
	return nil
}

type mockCentral struct {
	gatt.Central
	id string
}

func (m *mockCentral) ID() string {
	return m.id
}

func newTestTransport(t *testing.T, dev *mockDevice) *Transport {
	tr, err := New(bttherm.DefaultConfig(), WithDevice(dev), WithInitTimeout(20*time.Millisecond))
	require.NoError(t, err)
	return tr
}

func TestTransport_Start(t *testing.T) {
	dev := &mockDevice{states: []gatt.State{gatt.StatePoweredOff, gatt.StatePoweredOn}}
	tr := newTestTransport(t, dev)

	var events []bttherm.Event
	require.NoError(t, tr.Start(func(ev bttherm.Event) { events = append(events, ev) }))

	assert.Equal(t, 2, dev.handlers)
	assert.Equal(t, 1, dev.stopped)
	require.Len(t, dev.services, 1)
	assert.True(t, dev.services[0].UUID().Equal(tr.serviceUUID))
	assert.Len(t, dev.services[0].Characteristics(), 2)

	require.NoError(t, tr.Advertise())
	assert.Equal(t, []string{"ESP32_TempSensor"}, dev.advertised)

	n := &mockNotifier{cap: 20}
	tr.temperature.serveNotify(gatt.Request{}, n)
	tr.battery.serveNotify(gatt.Request{}, n)

	central := &mockCentral{id: "central-1"}
	tr.onCentralConnected(central)
	tr.Temperature().SetValue([]byte{0x4E, 0x0C})
	require.NoError(t, tr.Temperature().Notify())

	tr.onCentralDisconnected(central)
	assert.ErrorIs(t, tr.Temperature().Notify(), bttherm.ErrNotSubscribed)
	assert.ErrorIs(t, tr.Battery().Notify(), bttherm.ErrNotSubscribed)

	assert.Equal(t, []bttherm.Event{
		{Type: bttherm.EventConnect, Peer: "central-1"},
		{Type: bttherm.EventDisconnect, Peer: "central-1"},
	}, events)
	assert.Equal(t, [][]byte{{0x4E, 0x0C}}, n.written)

	require.NoError(t, tr.Close())
	assert.Equal(t, 2, dev.stopped)
	assert.Equal(t, 1, dev.removed)
}

func TestTransport_StartErrors(t *testing.T) {
	t.Run("not powered on", func(t *testing.T) {
		tr := newTestTransport(t, &mockDevice{states: []gatt.State{gatt.StatePoweredOff}})
		assert.Error(t, tr.Start(func(bttherm.Event) {}))
	})

	t.Run("service rejected", func(t *testing.T) {
		addErr := errors.New("attribute table full")
		tr := newTestTransport(t, &mockDevice{
			states: []gatt.State{gatt.StatePoweredOn},
			addErr: addErr,
		})
		assert.ErrorIs(t, tr.Start(func(bttherm.Event) {}), addErr)
	})
}

func TestTransport_UpdateConnParams(t *testing.T) {
	tr := newTestTransport(t, &mockDevice{})
	assert.ErrorIs(t, tr.UpdateConnParams(bttherm.DefaultConfig().Link), bttherm.ErrConnParamsUnsupported)
}
