package i2c

// DefaultDevDir is where the i2c-dev character devices live.
const DefaultDevDir = "/dev"

// Ioctl probes addresses through the i2c-dev character device, without an
// external utility. It selects the address with the I2C_SLAVE ioctl and
// attempts a one-byte read, the same probe i2cdetect uses for the EEPROM
// address range.
//
// An address already claimed by a kernel driver (EBUSY) is reported present.
type Ioctl struct {
	devDir string
}

// NewIoctl returns an [Ioctl] prober using devices under devDir.
// An empty devDir means [DefaultDevDir].
func NewIoctl(devDir string) *Ioctl {
	if devDir == "" {
		devDir = DefaultDevDir
	}

	return &Ioctl{devDir: devDir}
}

var _ Prober = (*Ioctl)(nil)
