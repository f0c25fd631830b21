package tempr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

// USB is an Enumerator backed by libusb through gousb. It must be closed
// after every device it opened has been closed.
type USB struct {
	ctx *gousb.Context
}

// NewUSB initialises a libusb context.
func NewUSB() *USB {
	ctx := gousb.NewContext()
	ctx.Debug(0)
	return &USB{ctx: ctx}
}

// OpenDevices opens every device whose descriptor matches id.
func (u *USB) OpenDevices(id DeviceIdentity) ([]Device, error) {
	devs, err := u.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == gousb.ID(id.VendorID) && desc.Product == gousb.ID(id.ProductID) {
			log.Debugf("Found device: %v", desc)
			return true
		}
		return false
	})
	// OpenDevices can fail on unrelated devices while still returning the
	// ones it managed to open.
	if err != nil {
		if len(devs) == 0 {
			return nil, fmt.Errorf("failed listing devices: %w", err)
		}
		log.Warnf("Error while listing devices: %v", err)
	}

	out := make([]Device, 0, len(devs))
	for _, dev := range devs {
		out = append(out, &usbDevice{dev: dev})
	}
	return out, nil
}

// Close releases the libusb context.
func (u *USB) Close() error {
	return u.ctx.Close()
}

type usbDevice struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
}

// DetachKernelDriver only enables auto-detach. The detach itself happens in
// SetConfiguration, where gousb absorbs "no driver attached"; any other
// detach failure surfaces from there.
func (d *usbDevice) DetachKernelDriver(iface int) error {
	return d.dev.SetAutoDetach(true)
}

func (d *usbDevice) SetConfiguration(cfg int) error {
	c, err := d.dev.Config(cfg)
	if err != nil {
		return err
	}
	d.cfg = c
	return nil
}

func (d *usbDevice) ClaimInterface(iface int) error {
	if d.cfg == nil {
		return errors.New("no active configuration")
	}
	intf, err := d.cfg.Interface(iface, 0)
	if err != nil {
		return err
	}
	d.iface = intf
	return nil
}

func (d *usbDevice) ReleaseInterface(iface int) error {
	if d.iface != nil {
		d.iface.Close()
		d.iface = nil
	}
	if d.cfg == nil {
		return nil
	}
	err := d.cfg.Close()
	d.cfg = nil
	return err
}

func (d *usbDevice) Control(ctx context.Context, rType, request uint8, value, index uint16, data []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		d.dev.ControlTimeout = time.Until(deadline)
	}
	return d.dev.Control(rType, request, value, index, data)
}

func (d *usbDevice) ReadInterrupt(ctx context.Context, ep uint8, data []byte) (int, error) {
	if d.iface == nil {
		return 0, errors.New("interface not claimed")
	}
	in, err := d.iface.InEndpoint(int(ep &^ 0x80))
	if err != nil {
		return 0, err
	}
	return in.ReadContext(ctx, data)
}

func (d *usbDevice) Reset() error {
	return d.dev.Reset()
}

func (d *usbDevice) Close() error {
	if err := d.ReleaseInterface(INTERFACE); err != nil {
		log.Warnf("Failed to drop configuration before close: %v", err)
	}
	return d.dev.Close()
}
