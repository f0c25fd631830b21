package tempr

import "encoding/binary"

// Unit is the temperature unit a Reading is reported in.
type Unit int

const (
	Celsius Unit = iota
	Fahrenheit
)

func (u Unit) String() string {
	if u == Fahrenheit {
		return "F"
	}
	return "C"
}

// RawToCelsius decodes the big-endian signed code at bytes 2-3 of sample
// using the sensor's fixed-point scale.
func RawToCelsius(sample RawSample) float64 {
	raw := int16(binary.BigEndian.Uint16(sample[tempOffset : tempOffset+2]))
	return float64(raw) * 125.0 / 32000.0
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*1.8 + 32
}
