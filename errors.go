package tempr

import "errors"

// Errors returned by the device core. Use errors.Is to check for them.
var (
	// ErrDeviceNotFound is returned when no enumerated device matches the
	// requested DeviceIdentity.
	ErrDeviceNotFound = errors.New("tempr: no matching TEMPer device found")

	// ErrDeviceIO wraps any failing or timed out configuration step, control
	// transfer or interrupt read.
	ErrDeviceIO = errors.New("tempr: device i/o failed")

	// ErrNoKernelDriver is returned by Device.DetachKernelDriver when the
	// detach failed because no kernel driver was bound to the interface.
	// A session treats it as success.
	ErrNoKernelDriver = errors.New("tempr: no kernel driver attached")
)
