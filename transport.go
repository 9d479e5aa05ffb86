package bttherm

import "errors"

var (

	// ErrConnParamsUnsupported is returned by transports that cannot update link parameters
	ErrConnParamsUnsupported = errors.New("connection parameter update not supported by transport")

	// ErrNotSubscribed is returned by Notify if no central has enabled notifications
	ErrNotSubscribed = errors.New("no subscriber for characteristic")
)

// Transport denotes a BLE peripheral stack exposing the GATT service of the sensor
type Transport interface {

	// Start initializes the stack and registers the service. Connect / disconnect events
	// must be delivered exactly once per physical transition, in order.
	Start(deliver func(Event)) error

	// Advertise (re-)starts announcing the service so a central can connect
	Advertise() error

	// UpdateConnParams requests new link parameters for the active connection
	UpdateConnParams(params ConnParams) error

	// Temperature returns the temperature characteristic slot
	Temperature() Characteristic

	// Battery returns the battery characteristic slot
	Battery() Characteristic

	// Close stops the stack
	Close() error
}

// Characteristic denotes an independently notifiable value slot
type Characteristic interface {

	// SetValue stores the value returned to subsequent reads and notifications
	SetValue(value []byte)

	// Notify sends the current value to the subscribed central
	Notify() error
}
