// Package i2c answers whether a peripheral responds at an I2C bus address.
//
// A [Prober] is constructed once at composition time and passed to whatever
// needs presence checks. Implementations:
//   - [Detect]: runs the i2cdetect utility and parses its table
//   - [Ioctl]: talks to /dev/i2c-N directly (Linux only)
//   - [Static]: fixed answers, for tests
//   - [Assume]: reports every address as present
//
// A permission failure is reported as [ErrPermission] and is never folded
// into "absent".
package i2c

import (
	"context"
	"errors"
	"fmt"
)

// Error variables for presence checks.
var (
	ErrPermission  = errors.New("permission denied")
	ErrProbeFailed = errors.New("probe failed")
	ErrUnsupported = errors.New("probe not supported on this platform")
)

// Prober reports whether a device answers at addr on bus.
type Prober interface {
	Probe(ctx context.Context, bus, addr int) (bool, error)
}

// ProberFunc adapts a function to [Prober].
type ProberFunc func(ctx context.Context, bus, addr int) (bool, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, bus, addr int) (bool, error) {
	return f(ctx, bus, addr)
}

// Assume reports every address as present.
//
// Used when no probing utility is installed: binding then fails later if
// nothing is there.
type Assume struct{}

// Probe always returns true.
func (Assume) Probe(context.Context, int, int) (bool, error) {
	return true, nil
}

// Static answers from a fixed set of present addresses.
type Static struct {
	// Present maps bus number to the addresses that respond on it.
	Present map[int][]int

	// Err, if set, is returned by every probe.
	Err error
}

// Probe reports whether addr is listed for bus.
func (s Static) Probe(_ context.Context, bus, addr int) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}

	for _, a := range s.Present[bus] {
		if a == addr {
			return true, nil
		}
	}

	return false, nil
}

// ValidAddr reports whether addr fits in 7 bits.
func ValidAddr(addr int) bool {
	return addr >= 0 && addr <= 0x7f
}

func checkArgs(bus, addr int) error {
	if bus < 0 {
		return fmt.Errorf("%w: invalid bus %d", ErrProbeFailed, bus)
	}

	if !ValidAddr(addr) {
		return fmt.Errorf("%w: invalid address 0x%x", ErrProbeFailed, addr)
	}

	return nil
}

var (
	_ Prober = Assume{}
	_ Prober = Static{}
	_ Prober = ProberFunc(nil)
)
