package tundev

import "errors"

// Sentinel errors returned by Device operations, combinable with errors.Is.
// Failures that carry an OS error wrap it alongside the sentinel.
var (
	// ErrInvalidMode reports a Config.Mode outside {TUN, TAP}.
	ErrInvalidMode = errors.New("invalid tunnel mode")

	// ErrAlreadyOpen reports a second Open on a Device that is open or was
	// opened before.
	ErrAlreadyOpen = errors.New("tunnel already opened")

	// ErrDeviceUnavailable reports that the clone device could not be
	// opened for a reason other than permission.
	ErrDeviceUnavailable = errors.New("tunnel device unavailable")

	// ErrPermissionDenied reports missing rights to create tunnel
	// interfaces. Remedy with elevated privilege or clone device
	// ownership, not by retrying.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDeviceSetupFailed reports a failed configuration ioctl.
	ErrDeviceSetupFailed = errors.New("device setup failed")

	// ErrNotOpen reports an operation that requires an open Device.
	ErrNotOpen = errors.New("tunnel not open")

	// ErrIO reports an underlying read or write failure.
	ErrIO = errors.New("tunnel i/o failure")

	// ErrDeviceClosed reports that the device stopped being readable
	// (zero-length read or EOF).
	ErrDeviceClosed = errors.New("tunnel device closed")

	// ErrUnsupported reports an operation the device mode does not
	// support, such as setting a hardware address on a TUN device.
	ErrUnsupported = errors.New("operation not supported by device mode")

	// ErrInvalidAddress reports an address that failed validation before
	// any control call was issued.
	ErrInvalidAddress = errors.New("invalid address")
)
