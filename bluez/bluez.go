// Package bluez provides a bttherm.Transport on top of tinygo.org/x/bluetooth, i.e. BlueZ
// via D-Bus on Linux hosts (or the SoftDevice / HCI stacks when built with TinyGo)
package bluez

import (
	"fmt"
	"sync"

	"github.com/fako1024/bttherm"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// Transport denotes a GATT server exposing the temperature and battery characteristics
type Transport struct {
	deviceName  string
	serviceUUID bluetooth.UUID
	tempUUID    bluetooth.UUID
	batteryUUID bluetooth.UUID

	temperature *characteristic
	battery     *characteristic

	mu     sync.Mutex
	device *bluetooth.Device

	adapter *bluetooth.Adapter
	adv     advertiser

	logger bttherm.Logger
}

// New instantiates a new BlueZ transport for the given configuration, executing
// functional options, if any
func New(cfg bttherm.Config, options ...func(*Transport)) (*Transport, error) {

	t := &Transport{
		deviceName:  cfg.DeviceName,
		temperature: &characteristic{},
		battery:     &characteristic{},
		adapter:     bluetooth.DefaultAdapter,
		logger:      &bttherm.NullLogger{},
	}

	var err error
	if t.serviceUUID, err = parseUUID(cfg.ServiceUUID); err != nil {
		return nil, fmt.Errorf("failed to parse service UUID `%s`: %w", cfg.ServiceUUID, err)
	}
	if t.tempUUID, err = parseUUID(cfg.TemperatureUUID); err != nil {
		return nil, fmt.Errorf("failed to parse temperature characteristic UUID `%s`: %w", cfg.TemperatureUUID, err)
	}
	if t.batteryUUID, err = parseUUID(cfg.BatteryUUID); err != nil {
		return nil, fmt.Errorf("failed to parse battery characteristic UUID `%s`: %w", cfg.BatteryUUID, err)
	}

	// Execute functional options (if any)
	for _, option := range options {
		option(t)
	}

	return t, nil
}

// WithAdapter sets the Bluetooth adapter (defaults to bluetooth.DefaultAdapter)
func WithAdapter(adapter *bluetooth.Adapter) func(*Transport) {
	return func(t *Transport) {
		t.adapter = adapter
	}
}

// WithLogger sets a logger
func WithLogger(logger bttherm.Logger) func(*Transport) {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Start enables the adapter, registers the connection handler and adds the service
func (t *Transport) Start(deliver func(bttherm.Event)) error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		peer := device.Address.String()

		t.mu.Lock()
		if connected {
			t.device = &device
		} else {
			t.device = nil
		}
		t.mu.Unlock()

		if connected {
			deliver(bttherm.Event{Type: bttherm.EventConnect, Peer: peer})
			return
		}
		deliver(bttherm.Event{Type: bttherm.EventDisconnect, Peer: peer})
	})

	if err := t.adapter.AddService(&bluetooth.Service{
		UUID: t.serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &t.temperature.handle,
				UUID:   t.tempUUID,
				Value:  []byte{0, 0},
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &t.battery.handle,
				UUID:   t.batteryUUID,
				Value:  []byte{0},
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to add service: %w", err)
	}

	adv := t.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    t.deviceName,
		ServiceUUIDs: []bluetooth.UUID{t.serviceUUID},
	}); err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	t.adv = adv

	return nil
}

// Advertise (re-)starts advertising the device name and service. BlueZ keeps the
// advertisement registered across connections, so it is unregistered before starting it
// again.
func (t *Transport) Advertise() error {
	if t.adv == nil {
		return fmt.Errorf("cannot advertise before transport has been started")
	}

	// Fails if the advertisement is not registered, which is the case on first use
	if err := t.adv.Stop(); err != nil {
		t.logger.Debugf("advertisement not stopped: %s", err)
	}
	return t.adv.Start()
}

// UpdateConnParams requests new link parameters from the connected central
func (t *Transport) UpdateConnParams(params bttherm.ConnParams) error {
	t.mu.Lock()
	device := t.device
	t.mu.Unlock()

	if device == nil {
		return fmt.Errorf("no central connected")
	}

	return device.RequestConnectionParams(bluetooth.ConnectionParams{
		MinInterval: bluetooth.NewDuration(params.MinInterval),
		MaxInterval: bluetooth.NewDuration(params.MaxInterval),
		Timeout:     bluetooth.NewDuration(params.SupervisionTimeout),
	})
}

// Temperature returns the temperature characteristic slot
func (t *Transport) Temperature() bttherm.Characteristic {
	return t.temperature
}

// Battery returns the battery characteristic slot
func (t *Transport) Battery() bttherm.Characteristic {
	return t.battery
}

// Close stops advertising
func (t *Transport) Close() error {
	if t.adv == nil {
		return nil
	}
	return t.adv.Stop()
}

////////////////////////////////////////////////////////////////////////////////

// advertiser is the part of bluetooth.Advertisement used after configuration
type advertiser interface {
	Start() error
	Stop() error
}

// characteristic buffers the value until Notify writes it to the GATT characteristic
// (which updates the readable value and notifies subscribed centrals)
type characteristic struct {
	mu     sync.Mutex
	value  []byte
	handle bluetooth.Characteristic
}

// SetValue stores the value to be sent on the next call to Notify
func (c *characteristic) SetValue(value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = append(c.value[:0], value...)
}

// Notify writes the current value to the characteristic
func (c *characteristic) Notify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.handle.Write(c.value)
	return err
}

func parseUUID(s string) (bluetooth.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return bluetooth.UUID{}, err
	}
	return bluetooth.NewUUID(u), nil
}
