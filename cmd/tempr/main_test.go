package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruudud/tempr"
)

// stubSensor answers every interrupt read with a 12.5 °C report.
type stubSensor struct{}

func (stubSensor) DetachKernelDriver(int) error { return tempr.ErrNoKernelDriver }
func (stubSensor) SetConfiguration(int) error   { return nil }
func (stubSensor) ClaimInterface(int) error     { return nil }
func (stubSensor) ReleaseInterface(int) error   { return nil }
func (stubSensor) Reset() error                 { return nil }
func (stubSensor) Close() error                 { return nil }

func (stubSensor) Control(_ context.Context, _, _ uint8, _, _ uint16, data []byte) (int, error) {
	return len(data), nil
}

func (stubSensor) ReadInterrupt(_ context.Context, _ uint8, data []byte) (int, error) {
	return copy(data, []byte{0x80, 0x02, 0x0c, 0x80, 0, 0, 0, 0}), nil
}

type stubBus []tempr.Device

func (b stubBus) OpenDevices(tempr.DeviceIdentity) ([]tempr.Device, error) {
	return b, nil
}

func withBus(t *testing.T, bus tempr.Enumerator) {
	prev := openBus
	openBus = func() (tempr.Enumerator, func()) { return bus, func() {} }
	t.Cleanup(func() { openBus = prev })
}

func TestRunNoSend(t *testing.T) {
	require := require.New(t)
	withBus(t, stubBus{stubSensor{}})

	var out bytes.Buffer
	require.Equal(exitOK, run([]string{"--no-send"}, &out))
	require.Equal("Temperature reading: 12.5°C\n", out.String())

	out.Reset()
	require.Equal(exitOK, run([]string{"--no-send", "--fahrenheit"}, &out))
	require.Equal("Temperature reading: 54.5°F\n", out.String())
}

func TestRunNoDevice(t *testing.T) {
	require := require.New(t)
	withBus(t, stubBus{})

	var out bytes.Buffer
	require.Equal(exitFailure, run([]string{"--no-send"}, &out))
	require.Empty(out.String())
}

func TestRunSendsToGraphite(t *testing.T) {
	require := require.New(t)
	withBus(t, stubBus{stubSensor{}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer ln.Close()
	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- ""
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	var out bytes.Buffer
	code := run([]string{"--host", "127.0.0.1", "--port", strconv.Itoa(port), "--metric", "attic.temp"}, &out)
	require.Equal(exitOK, code)
	require.Contains(out.String(), "Data sent successfully.")
	require.Regexp(`^attic\.temp 12\.500000 \d+\n$`, <-received)
}

func TestRunDeliveryFailure(t *testing.T) {
	require := require.New(t)
	withBus(t, stubBus{stubSensor{}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	var out bytes.Buffer
	require.Equal(exitDelivery, run([]string{"--host", "127.0.0.1", "--port", strconv.Itoa(port)}, &out))
	require.Contains(out.String(), "Temperature reading: 12.5°C")
	require.NotContains(out.String(), "Data sent successfully.")
}

func TestRunBadFlags(t *testing.T) {
	require := require.New(t)
	withBus(t, stubBus{stubSensor{}})

	require.Equal(exitFailure, run([]string{"--bogus"}, io.Discard))
	require.Equal(exitFailure, run([]string{"--port", "0"}, io.Discard))
}
