package tempr

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeDevice records every call made to it and answers interrupt reads from
// a queue of responses. Like gousb, it refuses Reset and Close while a
// configuration is active.
type fakeDevice struct {
	mu        sync.Mutex
	calls     []string
	controls  [][]byte
	responses [][]byte
	detachErr error
	claimErr  error
	hang      bool
	closed    bool
	cfgOpen   bool
	resets    int

	// ctrlErrAt fails the n-th control transfer (1-based) with ctrlErr.
	ctrlErrAt int
	ctrlErr   error
	// shortCtrlAt and shortReadAt make the n-th transfer move 4 bytes.
	shortCtrlAt int
	shortReadAt int
	reads       int
}

func (f *fakeDevice) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeDevice) DetachKernelDriver(iface int) error {
	f.record("detach %d", iface)
	return f.detachErr
}

func (f *fakeDevice) SetConfiguration(cfg int) error {
	f.record("config %d", cfg)
	f.mu.Lock()
	f.cfgOpen = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) ClaimInterface(iface int) error {
	f.record("claim %d", iface)
	return f.claimErr
}

func (f *fakeDevice) ReleaseInterface(iface int) error {
	f.record("release %d", iface)
	f.mu.Lock()
	f.cfgOpen = false
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) Control(ctx context.Context, rType, request uint8, value, index uint16, data []byte) (int, error) {
	f.record("ctrl %#02x %#02x %#04x %#02x", rType, request, value, index)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, append([]byte(nil), data...))
	n := len(f.controls)
	if n == f.ctrlErrAt {
		return 0, f.ctrlErr
	}
	if n == f.shortCtrlAt {
		return 4, nil
	}
	return len(data), nil
}

func (f *fakeDevice) ReadInterrupt(ctx context.Context, ep uint8, data []byte) (int, error) {
	f.record("read %#02x", ep)
	if f.hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads == f.shortReadAt {
		return copy(data, []byte{0x80, 0x02, 0x0c, 0x80}), nil
	}
	var resp []byte
	if len(f.responses) > 0 {
		resp, f.responses = f.responses[0], f.responses[1:]
	} else {
		resp = make([]byte, reqIntLen)
	}
	return copy(data, resp), nil
}

func (f *fakeDevice) Reset() error {
	f.record("reset")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfgOpen {
		return errors.New("can't reset device: active configuration")
	}
	f.resets++
	return nil
}

func (f *fakeDevice) Close() error {
	f.record("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfgOpen {
		return errors.New("can't close device: active configuration")
	}
	f.closed = true
	return nil
}

type fakeBus struct {
	devs []*fakeDevice
	err  error
}

func (b *fakeBus) OpenDevices(id DeviceIdentity) ([]Device, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Device, 0, len(b.devs))
	for _, d := range b.devs {
		out = append(out, d)
	}
	return out, nil
}

// tempResponse is a report whose temperature code is 0x0c80 (3200).
func tempResponse() []byte {
	return []byte{0x80, 0x02, 0x0c, 0x80, 0x00, 0x00, 0x00, 0x00}
}

// sensor returns a device whose fifth interrupt read (the second TEMP) carries
// resp.
func sensor(resp []byte) *fakeDevice {
	junk := []byte{0xff, 0xff, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff}
	return &fakeDevice{responses: [][]byte{junk, junk, junk, junk, resp}}
}
