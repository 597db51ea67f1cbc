package eeprom

import (
	"errors"
	"strings"

	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

// Error variables for device operations.
var (
	// ErrConfig reports a bad device type, bus, or address at [Open].
	ErrConfig = errors.New("invalid device configuration")

	// ErrPermission reports insufficient privilege to probe or access the
	// bus. It is the same value as [i2c.ErrPermission].
	ErrPermission = i2c.ErrPermission

	// ErrBounds reports a transfer that would cross the end of the device.
	// Such requests never reach the hardware.
	ErrBounds = errors.New("out of bounds")

	// ErrIO reports an irrecoverable transfer failure.
	ErrIO = errors.New("i/o fault")

	// ErrBind reports a failure creating or deleting the sysfs device.
	ErrBind = errors.New("bind failed")

	// ErrClosed reports use of a [Device] after [Device.Close].
	ErrClosed = errors.New("device closed")
)

// Error carries device context for failures returned by this package.
//
// The cause comes first, followed by context:
//
//	out of bounds: 16 bytes at 0x1ff8 exceeds 8192 (op=read device=0-0054)
//
// Use [errors.Is] with the sentinels above and [errors.As] for the fields.
type Error struct {
	// Op is the operation that failed: "open", "read", "write", "close",
	// "bind" or "unbind".
	Op string

	// Device is the sysfs device name, "{bus}-{addr:04x}", when known.
	Device string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (op=X device=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}

	if e.Device != "" {
		parts = append(parts, "device="+e.Device)
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// withContext attaches device context at API boundaries.
// If err is already *Error, missing fields are filled in place.
func withContext(err error, op, device string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Op == "" {
			existing.Op = op
		}

		if existing.Device == "" {
			existing.Device = device
		}

		return existing
	}

	return &Error{Op: op, Device: device, Err: err}
}
