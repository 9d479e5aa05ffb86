//go:generate stringer -type=State,EventType -output=types_string.go
package bttherm

import (
	"fmt"
)

// State denotes a connection state
type State int32

const (

	// StateDisconnected is active while no central is connected (initial state)
	StateDisconnected State = iota

	// StateConnected is active while a central is connected to the peripheral
	StateConnected
)

// ConnectionStatus denotes the current status of the peripheral
type ConnectionStatus struct {
	Peer string
	State
}

// EventType denotes the kind of link-layer event delivered by a transport
type EventType int

const (

	// EventConnect is delivered once when a central connects
	EventConnect EventType = iota

	// EventDisconnect is delivered once when the central disconnects
	EventDisconnect
)

// Event denotes a link-layer connection event
type Event struct {
	Type EventType
	Peer string
}

// Reading denotes a single filtered temperature measurement plus the battery level
// reported alongside it
type Reading struct {
	Temperature  float64
	BatteryLevel uint8
}

// String fulfils the Stringer interface
func (r Reading) String() string {
	return fmt.Sprintf("Temperature: %.2f°C, Battery: %d%%", r.Temperature, r.BatteryLevel)
}

// Alert returns if the reading exceeds the given threshold (strictly greater)
func (r Reading) Alert(threshold float64) bool {
	return r.Temperature > threshold
}

// Stats denotes counters collected over the lifetime of the peripheral
type Stats struct {
	Sessions uint64
	Produced uint64
	Dropped  uint64
	Sent     uint64
}
