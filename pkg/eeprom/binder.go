package eeprom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/eepromkv/pkg/fs"
)

// DefaultSysfsDir is where the kernel lists I2C adapters and clients.
const DefaultSysfsDir = "/sys/bus/i2c/devices"

// sysfs layout.
const (
	newDeviceFile    = "new_device"
	deleteDeviceFile = "delete_device"
	dataFile         = "eeprom"
)

// DeviceName returns the sysfs client name for addr on bus, e.g. "0-0054".
func DeviceName(bus, addr int) string {
	return fmt.Sprintf("%d-%04x", bus, addr)
}

// Binder instantiates and removes at24 clients through the sysfs
// new_device/delete_device control points.
//
// Binder has no storage semantics; it only makes the eeprom file appear and
// disappear.
type Binder struct {
	fsys fs.FS
	root string
	log  logrus.FieldLogger
}

// NewBinder returns a Binder rooted at root (usually [DefaultSysfsDir]).
// A nil log discards output.
func NewBinder(fsys fs.FS, root string, log logrus.FieldLogger) *Binder {
	if root == "" {
		root = DefaultSysfsDir
	}

	if log == nil {
		log = discardLogger()
	}

	return &Binder{fsys: fsys, root: root, log: log}
}

// Root returns the sysfs directory the binder works in.
func (b *Binder) Root() string {
	return b.root
}

// BusDir returns the adapter directory for bus.
func (b *Binder) BusDir(bus int) string {
	return filepath.Join(b.root, fmt.Sprintf("i2c-%d", bus))
}

// DeviceDir returns the client directory for addr on bus.
func (b *Binder) DeviceDir(bus, addr int) string {
	return filepath.Join(b.root, DeviceName(bus, addr))
}

// DataPath returns the path of the eeprom file exposed by the client.
func (b *Binder) DataPath(bus, addr int) string {
	return filepath.Join(b.DeviceDir(bus, addr), dataFile)
}

// BusExists reports whether the adapter directory for bus exists.
func (b *Binder) BusExists(bus int) (bool, error) {
	info, err := b.fsys.Stat(b.BusDir(bus))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return info.IsDir(), nil
}

// Bind makes the eeprom file for addr on bus available, writing
// "TYPE ADDR\n" to new_device unless the client already exists.
//
// Returns [ErrBind] if the control point cannot be written or the eeprom file
// is missing afterwards.
func (b *Binder) Bind(bus, addr int, typeName string) error {
	devDir := b.DeviceDir(bus, addr)
	log := b.log.WithFields(logrus.Fields{"device": DeviceName(bus, addr), "type": typeName})

	exists, err := b.fsys.Exists(devDir)
	if err != nil {
		return fmt.Errorf("%w: checking %s: %w", ErrBind, devDir, err)
	}

	if !exists {
		ctl := filepath.Join(b.BusDir(bus), newDeviceFile)

		err = b.fsys.WriteFile(ctl, fmt.Appendf(nil, "%s %d\n", typeName, addr), 0o200)
		if err != nil {
			return fmt.Errorf("%w: creating device: %w", ErrBind, err)
		}

		log.Debug("created i2c client")
	} else {
		log.Debug("i2c client already present")
	}

	info, err := b.fsys.Stat(b.DataPath(bus, addr))
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: eeprom file not found in %s", ErrBind, devDir)
	}

	return nil
}

// Unbind removes the client for addr on bus by writing "ADDR\n" to
// delete_device. It is a no-op if the client directory does not exist, so it
// is safe after a partial [Binder.Bind].
func (b *Binder) Unbind(bus, addr int) error {
	devDir := b.DeviceDir(bus, addr)

	exists, err := b.fsys.Exists(devDir)
	if err != nil {
		return fmt.Errorf("%w: checking %s: %w", ErrBind, devDir, err)
	}

	if !exists {
		return nil
	}

	ctl := filepath.Join(b.BusDir(bus), deleteDeviceFile)

	err = b.fsys.WriteFile(ctl, fmt.Appendf(nil, "%d\n", addr), 0o200)
	if err != nil {
		return fmt.Errorf("%w: deleting device: %w", ErrBind, err)
	}

	b.log.WithField("device", DeviceName(bus, addr)).Debug("deleted i2c client")

	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}
