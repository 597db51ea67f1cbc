package eeprom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/eepromkv/pkg/fs"
	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

// maxStalls bounds consecutive zero-byte transfers before a read or write
// is treated as stuck.
const maxStalls = 16

// Config describes the device to open.
type Config struct {
	// Type is an at24 device name, e.g. "24c64". See [Types].
	Type string

	// Bus is the I2C adapter number.
	Bus int

	// Addr is the 7-bit client address.
	Addr int

	// SysfsDir is the sysfs i2c devices directory. Defaults to [DefaultSysfsDir].
	SysfsDir string

	// FS is used for all sysfs and device access. Defaults to [fs.NewReal].
	FS fs.FS

	// Prober checks the address responds before binding. Required.
	Prober i2c.Prober

	// Logger receives debug and teardown warnings. Defaults to discarding.
	Logger logrus.FieldLogger
}

// Device is an open EEPROM: a fixed-size byte address space backed by the
// sysfs eeprom file of a bound at24 client.
//
// A Device exclusively owns its file handle and its binding; both are
// released by [Device.Close]. Exactly one Device per physical EEPROM is
// assumed: nothing coordinates access across processes or instances.
//
// Device is not safe for concurrent use.
type Device struct {
	typ    string
	bus    int
	addr   int
	size   int
	name   string
	path   string
	binder *Binder
	file   fs.File
	log    logrus.FieldLogger
	closed bool
}

// Open validates cfg, checks the device is present, binds it and opens its
// eeprom file for reading and writing.
//
// Errors:
//   - [ErrConfig]: unknown type, address outside 7 bits, missing bus, or no
//     device answering at the address
//   - [ErrPermission]: the presence check was denied
//   - [ErrBind]: the client could not be created
//   - [ErrIO]: the eeprom file could not be opened
//
// Anything acquired before a failure is released before Open returns.
func Open(ctx context.Context, cfg Config) (*Device, error) {
	name := DeviceName(cfg.Bus, cfg.Addr)

	dev, err := open(ctx, cfg, name)
	if err != nil {
		return nil, withContext(err, "open", name)
	}

	return dev, nil
}

func open(ctx context.Context, cfg Config, name string) (*Device, error) {
	size, ok := TypeSize(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown device type %q", ErrConfig, cfg.Type)
	}

	if !i2c.ValidAddr(cfg.Addr) {
		return nil, fmt.Errorf("%w: address 0x%x is not a 7-bit address", ErrConfig, cfg.Addr)
	}

	if cfg.Bus < 0 {
		return nil, fmt.Errorf("%w: invalid bus %d", ErrConfig, cfg.Bus)
	}

	if cfg.Prober == nil {
		return nil, fmt.Errorf("%w: no presence prober configured", ErrConfig)
	}

	fsys := cfg.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	log := cfg.Logger
	if log == nil {
		log = discardLogger()
	}

	log = log.WithField("device", name)
	binder := NewBinder(fsys, cfg.SysfsDir, log)

	busOK, err := binder.BusExists(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("%w: checking bus %d: %w", ErrConfig, cfg.Bus, err)
	}

	if !busOK {
		return nil, fmt.Errorf("%w: i2c bus %d not found in %s", ErrConfig, cfg.Bus, binder.Root())
	}

	present, err := cfg.Prober.Probe(ctx, cfg.Bus, cfg.Addr)
	if err != nil {
		return nil, err
	}

	if !present {
		return nil, fmt.Errorf("%w: no device at address 0x%02x on bus %d", ErrConfig, cfg.Addr, cfg.Bus)
	}

	dev := &Device{
		typ:    cfg.Type,
		bus:    cfg.Bus,
		addr:   cfg.Addr,
		size:   size,
		name:   name,
		path:   binder.DataPath(cfg.Bus, cfg.Addr),
		binder: binder,
		log:    log,
	}

	err = binder.Bind(cfg.Bus, cfg.Addr, cfg.Type)
	if err != nil {
		_ = dev.release()

		return nil, err
	}

	file, err := fsys.OpenFile(dev.path, os.O_RDWR, 0)
	if err != nil {
		_ = dev.release()

		return nil, fmt.Errorf("%w: opening eeprom: %w", ErrIO, err)
	}

	dev.file = file

	log.WithField("size", size).Debug("eeprom opened")

	return dev, nil
}

// Size returns the capacity in bytes.
func (d *Device) Size() int { return d.size }

// Type returns the at24 device type name.
func (d *Device) Type() string { return d.typ }

// Bus returns the I2C adapter number.
func (d *Device) Bus() int { return d.bus }

// Addr returns the client address.
func (d *Device) Addr() int { return d.addr }

// Name returns the sysfs client name, e.g. "0-0054".
func (d *Device) Name() string { return d.name }

// Path returns the eeprom file path.
func (d *Device) Path() string { return d.path }

// Read returns exactly length bytes starting at offset.
//
// Short reads are retried until length bytes are collected. Returns
// [ErrBounds] without touching the device if the range crosses the end, and
// [ErrIO] on a read failure, premature end of file, or a stalled device.
func (d *Device) Read(offset int64, length int) ([]byte, error) {
	data, err := d.read(offset, length)
	if err != nil {
		return nil, withContext(err, "read", d.name)
	}

	return data, nil
}

func (d *Device) read(offset int64, length int) ([]byte, error) {
	if d.file == nil {
		return nil, ErrClosed
	}

	err := d.checkBounds("read", offset, length)
	if err != nil {
		return nil, err
	}

	if length == 0 {
		return []byte{}, nil
	}

	_, err = d.file.Seek(offset, io.SeekStart)
	if err != nil {
		return nil, fmt.Errorf("%w: seek to 0x%x: %w", ErrIO, offset, err)
	}

	buf := make([]byte, length)
	got := 0
	stalls := 0

	for got < length {
		n, err := d.file.Read(buf[got:])
		got += n

		if err != nil {
			if errors.Is(err, io.EOF) {
				if got == length {
					break
				}

				return nil, fmt.Errorf("%w: %w after %d of %d bytes at 0x%x", ErrIO, io.ErrUnexpectedEOF, got, length, offset)
			}

			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}

		if n > 0 {
			stalls = 0

			continue
		}

		stalls++
		if stalls >= maxStalls {
			return nil, fmt.Errorf("%w: %w after %d of %d bytes at 0x%x", ErrIO, io.ErrNoProgress, got, length, offset)
		}
	}

	return buf, nil
}

// Write stores p starting at offset and returns the number of bytes written,
// which equals len(p) on success.
//
// Partial writes reported as [io.ErrShortWrite] are continued. Returns
// [ErrBounds] without touching the device if the range crosses the end, and
// [ErrIO] on any other failure, together with the count written so far.
func (d *Device) Write(offset int64, p []byte) (int, error) {
	n, err := d.write(offset, p)
	if err != nil {
		return n, withContext(err, "write", d.name)
	}

	return n, nil
}

func (d *Device) write(offset int64, p []byte) (int, error) {
	if d.file == nil {
		return 0, ErrClosed
	}

	err := d.checkBounds("write", offset, len(p))
	if err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, nil
	}

	_, err = d.file.Seek(offset, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("%w: seek to 0x%x: %w", ErrIO, offset, err)
	}

	written := 0
	stalls := 0

	for written < len(p) {
		n, err := d.file.Write(p[written:])
		written += n

		if err != nil {
			if errors.Is(err, io.ErrShortWrite) && n > 0 {
				continue
			}

			return written, fmt.Errorf("%w: %w after %d of %d bytes at 0x%x", ErrIO, err, written, len(p), offset)
		}

		if n > 0 {
			stalls = 0

			continue
		}

		stalls++
		if stalls >= maxStalls {
			return written, fmt.Errorf("%w: %w after %d of %d bytes at 0x%x", ErrIO, io.ErrNoProgress, written, len(p), offset)
		}
	}

	return written, nil
}

func (d *Device) checkBounds(op string, offset int64, length int) error {
	if offset < 0 || length < 0 || offset+int64(length) > int64(d.size) {
		return fmt.Errorf("%w: cannot %s %d bytes at 0x%x (size %d)", ErrBounds, op, length, offset, d.size)
	}

	return nil
}

// Close closes the eeprom file and removes the binding. The binding is
// removed even if closing the file fails.
//
// Close is idempotent. Failures are logged and returned joined; they never
// panic, so "defer dev.Close()" is safe on every path.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}

	return d.release()
}

func (d *Device) release() error {
	d.closed = true

	var errs []error

	if d.file != nil {
		err := d.file.Close()
		d.file = nil

		if err != nil {
			d.log.WithError(err).Warn("closing eeprom file")
			errs = append(errs, withContext(fmt.Errorf("%w: closing eeprom: %w", ErrIO, err), "close", d.name))
		}
	}

	err := d.binder.Unbind(d.bus, d.addr)
	if err != nil {
		d.log.WithError(err).Warn("removing i2c client")
		errs = append(errs, withContext(err, "unbind", d.name))
	}

	return errors.Join(errs...)
}
