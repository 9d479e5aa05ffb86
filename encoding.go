package bttherm

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	temperaturePayloadLen = 2
	batteryPayloadLen     = 1

	temperatureScale = 100.0
)

// ScaleTemperature converts a temperature in °C to hundredths of a degree, rounding half
// away from zero. Values outside of the int16 range saturate at the respective bound and
// NaN maps to zero, in both cases clipped is set.
func ScaleTemperature(celsius float64) (value int16, clipped bool) {
	if math.IsNaN(celsius) {
		return 0, true
	}

	scaled := math.Round(celsius * temperatureScale)
	switch {
	case scaled > math.MaxInt16:
		return math.MaxInt16, true
	case scaled < math.MinInt16:
		return math.MinInt16, true
	}

	return int16(scaled), false
}

// EncodeTemperature returns the temperature characteristic payload (SINT16, little
// endian, 0.01 °C resolution)
func EncodeTemperature(celsius float64) (payload []byte, clipped bool) {
	value, clipped := ScaleTemperature(celsius)

	payload = make([]byte, temperaturePayloadLen)
	binary.LittleEndian.PutUint16(payload, uint16(value))

	return payload, clipped
}

// EncodeBattery returns the battery characteristic payload (UINT8, percent)
func EncodeBattery(level uint8) []byte {
	return []byte{level}
}

// DecodeTemperature parses a temperature characteristic payload
func DecodeTemperature(data []byte) (float64, error) {
	if len(data) != temperaturePayloadLen {
		return 0, fmt.Errorf("invalid length of temperature data (want %d, have %d)", temperaturePayloadLen, len(data))
	}

	return float64(int16(binary.LittleEndian.Uint16(data))) / temperatureScale, nil
}

// DecodeBattery parses a battery characteristic payload
func DecodeBattery(data []byte) (uint8, error) {
	if len(data) != batteryPayloadLen {
		return 0, fmt.Errorf("invalid length of battery data (want %d, have %d)", batteryPayloadLen, len(data))
	}

	return data[0], nil
}
