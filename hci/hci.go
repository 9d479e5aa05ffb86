// Package hci provides a bttherm.Transport on top of a raw HCI socket (Linux) or
// CoreBluetooth (macOS), based on github.com/fako1024/gatt
package hci

import (
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bttherm"
	"github.com/fako1024/gatt"
)

const defaultInitTimeout = 10 * time.Second

// Transport denotes a GATT server exposing the temperature and battery characteristics
type Transport struct {
	deviceName  string
	serviceUUID gatt.UUID
	tempUUID    gatt.UUID
	batteryUUID gatt.UUID

	temperature *characteristic
	battery     *characteristic

	initTimeout time.Duration
	poweredOn   chan error

	btDevice gatt.Device
	deliver  func(bttherm.Event)

	logger bttherm.Logger
}

// New instantiates a new HCI transport for the given configuration, executing
// functional options, if any
func New(cfg bttherm.Config, options ...func(*Transport)) (*Transport, error) {

	t := &Transport{
		deviceName:  cfg.DeviceName,
		temperature: &characteristic{},
		battery:     &characteristic{},
		initTimeout: defaultInitTimeout,
		poweredOn:   make(chan error, 1),
		logger:      &bttherm.NullLogger{},
	}

	var err error
	if t.serviceUUID, err = gatt.ParseUUID(cfg.ServiceUUID); err != nil {
		return nil, fmt.Errorf("failed to parse service UUID `%s`: %w", cfg.ServiceUUID, err)
	}
	if t.tempUUID, err = gatt.ParseUUID(cfg.TemperatureUUID); err != nil {
		return nil, fmt.Errorf("failed to parse temperature characteristic UUID `%s`: %w", cfg.TemperatureUUID, err)
	}
	if t.batteryUUID, err = gatt.ParseUUID(cfg.BatteryUUID); err != nil {
		return nil, fmt.Errorf("failed to parse battery characteristic UUID `%s`: %w", cfg.BatteryUUID, err)
	}

	// Execute functional options (if any)
	for _, option := range options {
		option(t)
	}

	// Initialize a new GATT device (if not provided as option)
	if t.btDevice == nil {
		btDevice, err := gatt.NewDevice(defaultBTServerOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to open bluetooth device: %w", err)
		}
		t.btDevice = btDevice
	}

	return t, nil
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Transport) {
	return func(t *Transport) {
		t.btDevice = btDevice
	}
}

// WithLogger sets a logger
func WithLogger(logger bttherm.Logger) func(*Transport) {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithInitTimeout sets the maximum time to wait for the adapter to power on
func WithInitTimeout(timeout time.Duration) func(*Transport) {
	return func(t *Transport) {
		t.initTimeout = timeout
	}
}

// Start registers the connection handlers, initializes the device and waits until the
// service has been registered on the powered-on adapter
func (t *Transport) Start(deliver func(bttherm.Event)) error {

	t.deliver = deliver

	// Register handlers
	t.btDevice.Handle(
		gatt.AddCentralConnected(t.onCentralConnected),
		gatt.AddCentralDisconnected(t.onCentralDisconnected),
	)

	// Initialize the device
	if err := t.btDevice.Init(t.onStateChanged); err != nil {
		return fmt.Errorf("failed to initialize bluetooth device: %w", err)
	}

	select {
	case err := <-t.poweredOn:
		return err
	case <-time.After(t.initTimeout):
		return fmt.Errorf("bluetooth device did not power on within %v", t.initTimeout)
	}
}

// Advertise (re-)starts advertising the device name and service
func (t *Transport) Advertise() error {
	return t.btDevice.AdvertiseNameAndServices(t.deviceName, []gatt.UUID{t.serviceUUID})
}

// UpdateConnParams is not supported by the underlying GATT implementation, the central
// keeps its default link parameters
func (t *Transport) UpdateConnParams(params bttherm.ConnParams) error {
	return bttherm.ErrConnParamsUnsupported
}

// Temperature returns the temperature characteristic slot
func (t *Transport) Temperature() bttherm.Characteristic {
	return t.temperature
}

// Battery returns the battery characteristic slot
func (t *Transport) Battery() bttherm.Characteristic {
	return t.battery
}

// Close stops advertising and removes the service from the device
func (t *Transport) Close() error {
	if err := t.btDevice.StopAdvertising(); err != nil {
		t.logger.Warnf("failed to stop advertising: %s", err)
	}
	return t.btDevice.RemoveAllServices()
}

////////////////////////////////////////////////////////////////////////////////

func (t *Transport) onCentralConnected(c gatt.Central) {
	t.deliver(bttherm.Event{Type: bttherm.EventConnect, Peer: c.ID()})
}

func (t *Transport) onCentralDisconnected(c gatt.Central) {
	t.temperature.unsubscribe()
	t.battery.unsubscribe()
	t.deliver(bttherm.Event{Type: bttherm.EventDisconnect, Peer: c.ID()})
}

func (t *Transport) onStateChanged(d gatt.Device, s gatt.State) {
	t.logger.Debugf("bluetooth device state changed: %v", s)

	switch s {
	case gatt.StatePoweredOn:
		t.signalPoweredOn(d.AddService(t.newService()))
	default:
		if err := d.StopAdvertising(); err != nil {
			t.logger.Warnf("failed to stop advertising: %s", err)
		}
	}
}

func (t *Transport) signalPoweredOn(err error) {
	if err != nil {
		err = fmt.Errorf("failed to add service: %w", err)
	}
	select {
	case t.poweredOn <- err:
	default:
	}
}

func (t *Transport) newService() *gatt.Service {
	s := gatt.NewService(t.serviceUUID)

	temp := s.AddCharacteristic(t.tempUUID)
	temp.HandleReadFunc(t.temperature.serveRead)
	temp.HandleNotifyFunc(t.temperature.serveNotify)

	battery := s.AddCharacteristic(t.batteryUUID)
	battery.HandleReadFunc(t.battery.serveRead)
	battery.HandleNotifyFunc(t.battery.serveNotify)

	return s
}

////////////////////////////////////////////////////////////////////////////////

// characteristic holds the current value of a characteristic and the notifier of the
// subscribed central (if any)
type characteristic struct {
	mu       sync.Mutex
	value    []byte
	notifier gatt.Notifier
}

// SetValue stores the value returned to subsequent reads and notifications
func (c *characteristic) SetValue(value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = append(c.value[:0], value...)
}

// Notify sends the current value to the subscribed central
func (c *characteristic) Notify() error {
	c.mu.Lock()
	n, value := c.notifier, append([]byte(nil), c.value...)
	c.mu.Unlock()

	if n == nil || n.Done() {
		return bttherm.ErrNotSubscribed
	}
	if len(value) > n.Cap() {
		return fmt.Errorf("value of %d bytes exceeds notification capacity of %d bytes", len(value), n.Cap())
	}

	_, err := n.Write(value)
	return err
}

func (c *characteristic) serveRead(rsp gatt.ResponseWriter, req *gatt.ReadRequest) {
	c.mu.Lock()
	value := append([]byte(nil), c.value...)
	c.mu.Unlock()

	rsp.Write(value)
}

func (c *characteristic) serveNotify(r gatt.Request, n gatt.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notifier = n
}

func (c *characteristic) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notifier = nil
}
