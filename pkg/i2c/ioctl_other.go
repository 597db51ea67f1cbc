//go:build !linux

package i2c

import "context"

// Probe is only implemented on Linux.
func (p *Ioctl) Probe(context.Context, int, int) (bool, error) {
	return false, ErrUnsupported
}
