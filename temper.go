package tempr

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// INTERFACE is the interface number the sensor answers on.
	INTERFACE int = 0x01

	reqIntLen  int    = 8
	InEndpoint uint8  = 0x82
	tempOffset int    = 2
	configNum  int    = 0x01
	reqType    uint8  = 0x21
	reqSetRpt  uint8  = 0x09
	reqValue   uint16 = 0x0200
	reqIndex   uint16 = 0x01
)

// DefaultTimeout bounds every control transfer and interrupt read.
const DefaultTimeout = 4000 * time.Millisecond

var (
	uTemp = [reqIntLen]byte{0x01, 0x80, 0x33, 0x01, 0x00, 0x00, 0x00, 0x00}
	uIni1 = [reqIntLen]byte{0x01, 0x82, 0x77, 0x01, 0x00, 0x00, 0x00, 0x00}
	uIni2 = [reqIntLen]byte{0x01, 0x86, 0xff, 0x01, 0x00, 0x00, 0x00, 0x00}
)

// DeviceIdentity selects the supported hardware by USB vendor and product ID.
type DeviceIdentity struct {
	VendorID  uint16
	ProductID uint16
}

// TEMPer is the "0c45:7401 Microdia" TEMPer thermometer.
var TEMPer = DeviceIdentity{VendorID: 0x0c45, ProductID: 0x7401}

func (id DeviceIdentity) String() string {
	return fmt.Sprintf("%04x:%04x", id.VendorID, id.ProductID)
}

// RawSample is one interrupt transfer payload. Bytes 2 and 3 hold the
// big-endian signed temperature code.
type RawSample [reqIntLen]byte

// Device is the host-access layer for one opened USB device.
type Device interface {
	// DetachKernelDriver detaches, or arranges to detach, any kernel driver
	// bound to iface. An error wrapping ErrNoKernelDriver means there was
	// none and is ignored.
	DetachKernelDriver(iface int) error
	SetConfiguration(cfg int) error
	ClaimInterface(iface int) error
	// ReleaseInterface releases iface if it was claimed and drops the
	// active configuration. It is called whenever SetConfiguration
	// succeeded, even if the claim failed.
	ReleaseInterface(iface int) error
	// Control issues a control transfer. It must give up once ctx is done.
	Control(ctx context.Context, rType, request uint8, value, index uint16, data []byte) (int, error)
	// ReadInterrupt reads one report from the IN endpoint ep. It must give
	// up once ctx is done.
	ReadInterrupt(ctx context.Context, ep uint8, data []byte) (int, error)
	Reset() error
	Close() error
}

// Enumerator opens every attached device matching id, in enumeration order.
type Enumerator interface {
	OpenDevices(id DeviceIdentity) ([]Device, error)
}

// SelectFunc picks one of n matching devices and returns its index.
type SelectFunc func(n int) int

// SelectFirst picks the first enumerated device.
func SelectFirst(n int) int { return 0 }

// Handle is a device exclusively owned by one sampling cycle.
type Handle struct {
	dev        Device
	configured bool
	closed     bool
}

// Session runs the TEMPer command sequence against a device.
type Session struct {
	Identity   DeviceIdentity
	Enumerator Enumerator
	Select     SelectFunc
	Timeout    time.Duration
}

// NewSession returns a Session for the TEMPer on the given bus with the
// default first-device policy and transfer timeout.
func NewSession(enum Enumerator) *Session {
	return &Session{
		Identity:   TEMPer,
		Enumerator: enum,
		Select:     SelectFirst,
		Timeout:    DefaultTimeout,
	}
}

// Open locates the device and returns a handle to it. Every other matching
// device that was opened is closed again.
func (s *Session) Open() (*Handle, error) {
	devs, err := s.Enumerator.OpenDevices(s.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: listing devices: %v", ErrDeviceIO, err)
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, s.Identity)
	}
	log.Debugf("Found %d devices matching %v", len(devs), s.Identity)

	pick := 0
	if s.Select != nil {
		pick = s.Select(len(devs))
	}
	if pick < 0 || pick >= len(devs) {
		pick = 0
	}
	for i, dev := range devs {
		if i == pick {
			continue
		}
		if err := dev.Close(); err != nil {
			log.Warnf("Failed to close unused device %d: %v", i, err)
		}
	}
	return &Handle{dev: devs[pick]}, nil
}

// Sample takes control of the device, runs the command sequence and returns
// the response to the second TEMP command. The interface is released and the
// device reset and closed before Sample returns, whatever the outcome; the
// handle cannot be reused.
func (s *Session) Sample(h *Handle) (sample RawSample, err error) {
	if h == nil || h.closed {
		return sample, fmt.Errorf("%w: handle already released", ErrDeviceIO)
	}
	defer h.release()

	if err := h.takeControl(); err != nil {
		return sample, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dummy := make([]byte, reqIntLen)

	steps := []struct {
		name string
		cmd  *[reqIntLen]byte
	}{
		{"TEMP", &uTemp},
		{"INIT1", &uIni1},
		{"INIT2", &uIni2},
		{"INIT2-2", nil},
	}
	for _, step := range steps {
		if step.cmd != nil {
			log.Debugf("control transfer %s", step.name)
			if err := h.controlTransfer(timeout, step.cmd[:]); err != nil {
				return sample, fmt.Errorf("%w: control transfer %s: %v", ErrDeviceIO, step.name, err)
			}
		}
		log.Debugf("interrupt read %s", step.name)
		if err := h.interruptRead(timeout, dummy); err != nil {
			return sample, fmt.Errorf("%w: interrupt read %s: %v", ErrDeviceIO, step.name, err)
		}
	}

	log.Debugf("control transfer TEMP")
	if err := h.controlTransfer(timeout, uTemp[:]); err != nil {
		return sample, fmt.Errorf("%w: control transfer TEMP: %v", ErrDeviceIO, err)
	}
	log.Debugf("interrupt read TEMP")
	if err := h.interruptRead(timeout, sample[:]); err != nil {
		return sample, fmt.Errorf("%w: interrupt read TEMP: %v", ErrDeviceIO, err)
	}
	return sample, nil
}

func (h *Handle) takeControl() error {
	log.Debugf("Detach kernel driver from iface-%d", INTERFACE)
	if err := h.dev.DetachKernelDriver(INTERFACE); err != nil {
		if !errors.Is(err, ErrNoKernelDriver) {
			return fmt.Errorf("%w: detaching kernel driver: %v", ErrDeviceIO, err)
		}
		log.Debugf("No kernel driver attached: %v", err)
	}

	log.Debugf("Set configuration to 0x%02x", configNum)
	if err := h.dev.SetConfiguration(configNum); err != nil {
		return fmt.Errorf("%w: setting configuration: %v", ErrDeviceIO, err)
	}
	h.configured = true

	log.Debugf("Claim iface-%d", INTERFACE)
	if err := h.dev.ClaimInterface(INTERFACE); err != nil {
		return fmt.Errorf("%w: claiming iface-%d: %v", ErrDeviceIO, INTERFACE, err)
	}
	return nil
}

func (h *Handle) controlTransfer(timeout time.Duration, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := h.dev.Control(ctx, reqType, reqSetRpt, reqValue, reqIndex, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short control transfer: %d of %d bytes", n, len(data))
	}
	return nil
}

func (h *Handle) interruptRead(timeout time.Duration, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := h.dev.ReadInterrupt(ctx, InEndpoint, data)
	if err != nil {
		return err
	}
	if n != reqIntLen {
		return fmt.Errorf("short interrupt read: %d of %d bytes", n, reqIntLen)
	}
	return nil
}

// release gives the interface back, resets the device and closes it. Errors
// are logged; they never replace the result of the sampling cycle.
func (h *Handle) release() {
	if h.closed {
		return
	}
	h.closed = true
	// The device refuses a reset while a configuration is active.
	if h.configured {
		log.Debugf("Release iface-%d", INTERFACE)
		if err := h.dev.ReleaseInterface(INTERFACE); err != nil {
			log.Warnf("Failed to release iface-%d: %v", INTERFACE, err)
		}
		h.configured = false
	}
	log.Debugf("Reset device")
	if err := h.dev.Reset(); err != nil {
		log.Warnf("Failed to reset device: %v", err)
	}
	if err := h.dev.Close(); err != nil {
		log.Warnf("Failed to close device: %v", err)
	}
}

// Close releases a handle that was opened but never sampled.
func (h *Handle) Close() {
	if h != nil {
		h.release()
	}
}
