//go:build linux

package i2c

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// i2cSlave is I2C_SLAVE from <linux/i2c-dev.h>.
const i2cSlave = 0x0703

// Probe opens /dev/i2c-BUS, selects addr, and reads one byte.
func (p *Ioctl) Probe(ctx context.Context, bus, addr int) (bool, error) {
	if err := checkArgs(bus, addr); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	path := filepath.Join(p.devDir, "i2c-"+strconv.Itoa(bus))

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, classifyOpen(path, err)
	}

	defer func() { _ = unix.Close(fd) }()

	err = unix.IoctlSetInt(fd, i2cSlave, addr)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return true, nil
		}

		return false, fmt.Errorf("%w: %s: select 0x%02x: %w", ErrProbeFailed, path, addr, err)
	}

	buf := make([]byte, 1)
	_, err = unix.Read(fd, buf)

	return classifyRead(path, err)
}

func classifyOpen(path string, err error) error {
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return fmt.Errorf("%w: open %s: %w", ErrPermission, path, err)
	}

	return fmt.Errorf("%w: open %s: %w", ErrProbeFailed, path, err)
}

// classifyRead maps the result of the probe read to presence. A missing ack
// surfaces as ENXIO on most adapters, EREMOTEIO or EIO on some.
func classifyRead(path string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ENXIO), errors.Is(err, unix.EREMOTEIO), errors.Is(err, unix.EIO):
		return false, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return false, fmt.Errorf("%w: read %s: %w", ErrPermission, path, err)
	default:
		return false, fmt.Errorf("%w: read %s: %w", ErrProbeFailed, path, err)
	}
}
