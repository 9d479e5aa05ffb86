package bttherm

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// mockInput returns a fixed cycle of raw codes
type mockInput struct {
	mu    sync.Mutex
	codes []int32
	idx   int
	err   error
	reads int
}

func newMockInput(codes ...int32) *mockInput {
	return &mockInput{codes: codes}
}

func (m *mockInput) ReadRaw() (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.err != nil {
		return 0, m.err
	}
	code := m.codes[m.idx%len(m.codes)]
	m.idx++
	return code, nil
}

func (m *mockInput) setCodes(codes ...int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes, m.idx = codes, 0
}

// mockCharacteristic records every notified value
type mockCharacteristic struct {
	name string
	log  *notifyLog

	mu    sync.Mutex
	value []byte
	err   error
}

func (m *mockCharacteristic) SetValue(value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = append([]byte(nil), value...)
}

func (m *mockCharacteristic) Notify() error {
	m.mu.Lock()
	value, err := append([]byte(nil), m.value...), m.err
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.log.add(m.name, value)
	return nil
}

type notification struct {
	name  string
	value []byte
}

type notifyLog struct {
	mu      sync.Mutex
	entries []notification
}

func (l *notifyLog) add(name string, value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, notification{name: name, value: value})
}

func (l *notifyLog) all() []notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notification(nil), l.entries...)
}

func (l *notifyLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// mockTransport records all calls from the peripheral and lets tests inject events
type mockTransport struct {
	log         *notifyLog
	temperature *mockCharacteristic
	battery     *mockCharacteristic

	mu           sync.Mutex
	deliver      func(Event)
	advertised   int
	connParams   []ConnParams
	connParamErr error
	startErr     error
	closed       int
}

func newMockTransport() *mockTransport {
	log := &notifyLog{}
	return &mockTransport{
		log:         log,
		temperature: &mockCharacteristic{name: "temperature", log: log},
		battery:     &mockCharacteristic{name: "battery", log: log},
	}
}

func (m *mockTransport) Start(deliver func(Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.deliver = deliver
	return nil
}

func (m *mockTransport) Advertise() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertised++
	return nil
}

func (m *mockTransport) UpdateConnParams(params ConnParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connParams = append(m.connParams, params)
	return m.connParamErr
}

func (m *mockTransport) Temperature() Characteristic {
	return m.temperature
}

func (m *mockTransport) Battery() Characteristic {
	return m.battery
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockTransport) advertisedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertised
}

func (m *mockTransport) event(ev Event) {
	m.mu.Lock()
	deliver := m.deliver
	m.mu.Unlock()
	deliver(ev)
}

var errMock = errors.New("mock error")

func newMockPins() (alert, normal *gpiotest.Pin) {
	return &gpiotest.Pin{N: "ALERT", Num: 33}, &gpiotest.Pin{N: "NORMAL", Num: 25}
}

func levels(alert, normal *gpiotest.Pin) (gpio.Level, gpio.Level) {
	return alert.Read(), normal.Read()
}

// testConfig returns a configuration with an identity transfer function
// (temperature == average raw code) and shortened timings
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ADC.ReferenceVoltage = 1.0
	cfg.ADC.FullScaleCode = 100
	cfg.Sampler.Period = 20 * time.Millisecond
	cfg.Sampler.Spacing = 0
	cfg.PollTimeout = 5 * time.Millisecond
	cfg.PacingDelay = 2 * time.Millisecond
	cfg.SettleDelay = 5 * time.Millisecond
	return cfg
}
