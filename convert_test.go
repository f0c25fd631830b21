package tempr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleOf(raw int16) RawSample {
	var s RawSample
	s[2] = byte(uint16(raw) >> 8)
	s[3] = byte(uint16(raw))
	return s
}

func TestRawToCelsius(t *testing.T) {
	require := require.New(t)

	require.Equal(0.0, RawToCelsius(sampleOf(0)))
	require.Equal(12.5, RawToCelsius(sampleOf(3200)))
	require.Equal(-12.5, RawToCelsius(sampleOf(-3200)))
	// Only bytes 2 and 3 matter.
	s := sampleOf(3200)
	s[0], s[1], s[4], s[7] = 0xaa, 0xbb, 0xcc, 0xdd
	require.Equal(12.5, RawToCelsius(s))
}

func TestRawToCelsiusLinear(t *testing.T) {
	require := require.New(t)

	for r := -16384; r < 16384; r += 97 {
		single := RawToCelsius(sampleOf(int16(r)))
		double := RawToCelsius(sampleOf(int16(2 * r)))
		require.InDelta(2*single, double, 1e-9, "raw %d", r)
	}
}

func TestCelsiusToFahrenheit(t *testing.T) {
	require := require.New(t)

	require.Equal(32.0, CelsiusToFahrenheit(0))
	require.Equal(212.0, CelsiusToFahrenheit(100))
	require.InDelta(-40.0, CelsiusToFahrenheit(-40), 1e-9)
}

func TestUnitString(t *testing.T) {
	require := require.New(t)

	require.Equal("C", Celsius.String())
	require.Equal("F", Fahrenheit.String())
}
