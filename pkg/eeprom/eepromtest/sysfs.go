// Package eepromtest provides a simulated sysfs I2C tree for tests.
//
// [Sysfs] lays out i2c-N adapter directories under a temporary root and
// reacts to writes to new_device and delete_device the way the at24 driver
// does: binding creates "{bus}-{addr:04x}/eeprom", sized for the requested
// type; unbinding removes it. Chip contents survive unbind/rebind, like a
// real EEPROM.
package eepromtest

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/calvinalkan/eepromkv/pkg/eeprom"
	efs "github.com/calvinalkan/eepromkv/pkg/fs"
	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

// ErasedByte is what a blank chip reads back.
const ErasedByte = 0xFF

// Sysfs implements [efs.FS] over a temporary directory that mimics
// /sys/bus/i2c/devices.
type Sysfs struct {
	root string
	real *efs.Real

	mu       sync.Mutex
	chips    map[string][]byte
	controls []string

	// NoBind makes new_device accept the write without creating the client,
	// like a driver that fails to probe.
	NoBind bool
}

// NewSysfs creates a simulated tree with an adapter directory per bus.
func NewSysfs(tb testing.TB, buses ...int) *Sysfs {
	tb.Helper()

	s := &Sysfs{
		root:  tb.TempDir(),
		real:  efs.NewReal(),
		chips: map[string][]byte{},
	}

	for _, bus := range buses {
		s.AddBus(tb, bus)
	}

	return s
}

// Root returns the simulated devices directory.
func (s *Sysfs) Root() string {
	return s.root
}

// AddBus creates the adapter directory and control points for bus.
func (s *Sysfs) AddBus(tb testing.TB, bus int) {
	tb.Helper()

	dir := filepath.Join(s.root, fmt.Sprintf("i2c-%d", bus))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("eepromtest: %v", err)
	}

	for _, name := range []string{"new_device", "delete_device"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o200); err != nil {
			tb.Fatalf("eepromtest: %v", err)
		}
	}
}

// AddChip places a blank chip at addr on bus so probes find it.
func (s *Sysfs) AddChip(bus, addr int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := eeprom.DeviceName(bus, addr)
	if _, ok := s.chips[key]; !ok {
		s.chips[key] = []byte{}
	}
}

// Prober returns a prober that reports the chips added with [Sysfs.AddChip].
func (s *Sysfs) Prober() i2c.Prober {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := map[int][]int{}

	for key := range s.chips {
		bus, addr, ok := parseName(key)
		if ok {
			present[bus] = append(present[bus], addr)
		}
	}

	return i2c.Static{Present: present}
}

// Bound reports whether the client directory for addr on bus exists.
func (s *Sysfs) Bound(bus, addr int) bool {
	_, err := os.Stat(filepath.Join(s.root, eeprom.DeviceName(bus, addr)))

	return err == nil
}

// Image returns the chip contents, read from the eeprom file while bound.
func (s *Sysfs) Image(tb testing.TB, bus, addr int) []byte {
	tb.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eeprom.DeviceName(bus, addr)

	data, err := os.ReadFile(filepath.Join(s.root, key, "eeprom"))
	if err == nil {
		return data
	}

	return bytes.Clone(s.chips[key])
}

// SetImage overwrites the start of the chip with data.
func (s *Sysfs) SetImage(tb testing.TB, bus, addr int, data []byte) {
	tb.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eeprom.DeviceName(bus, addr)
	path := filepath.Join(s.root, key, "eeprom")

	if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
		defer func() { _ = f.Close() }()

		if _, err := f.WriteAt(data, 0); err != nil {
			tb.Fatalf("eepromtest: %v", err)
		}

		return
	}

	chip := s.chips[key]
	if len(chip) < len(data) {
		grown := bytes.Repeat([]byte{ErasedByte}, len(data))
		copy(grown, chip)
		chip = grown
	}

	copy(chip, data)
	s.chips[key] = chip
}

// Controls returns every write made to a control point, as "path: data".
func (s *Sysfs) Controls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.controls...)
}

// WriteFile intercepts new_device and delete_device; other paths are
// written normally.
func (s *Sysfs) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(path)
	dir = filepath.Clean(dir)

	bus, isBus := parseBusDir(dir)
	if !isBus || filepath.Dir(dir) != filepath.Clean(s.root) {
		return s.real.WriteFile(path, data, perm)
	}

	switch base {
	case "new_device":
		return s.newDevice(path, bus, string(data))
	case "delete_device":
		return s.deleteDevice(path, bus, string(data))
	default:
		return s.real.WriteFile(path, data, perm)
	}
}

func (s *Sysfs) newDevice(path string, bus int, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.controls = append(s.controls, path+": "+line)

	typeName, addrText, ok := strings.Cut(strings.TrimSuffix(line, "\n"), " ")
	if !ok {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.EINVAL}
	}

	addr, err := strconv.ParseInt(addrText, 0, 16)
	if err != nil {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.EINVAL}
	}

	size, ok := eeprom.TypeSize(typeName)
	if !ok {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.EINVAL}
	}

	key := eeprom.DeviceName(bus, int(addr))
	devDir := filepath.Join(s.root, key)

	if _, err := os.Stat(devDir); err == nil {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.EBUSY}
	}

	if s.NoBind {
		return nil
	}

	chip := s.chips[key]
	image := bytes.Repeat([]byte{ErasedByte}, size)
	copy(image, chip)

	if err := os.MkdirAll(devDir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(devDir, "eeprom"), image, 0o600)
}

func (s *Sysfs) deleteDevice(path string, bus int, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.controls = append(s.controls, path+": "+line)

	addr, err := strconv.ParseInt(strings.TrimSpace(line), 0, 16)
	if err != nil {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.EINVAL}
	}

	key := eeprom.DeviceName(bus, int(addr))
	devDir := filepath.Join(s.root, key)

	image, err := os.ReadFile(filepath.Join(devDir, "eeprom"))
	if err != nil {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.ENOENT}
	}

	s.chips[key] = image

	return os.RemoveAll(devDir)
}

// OpenFile is a passthrough to the real filesystem.
func (s *Sysfs) OpenFile(path string, flag int, perm os.FileMode) (efs.File, error) {
	return s.real.OpenFile(path, flag, perm)
}

// ReadFile is a passthrough to the real filesystem.
func (s *Sysfs) ReadFile(path string) ([]byte, error) {
	return s.real.ReadFile(path)
}

// MkdirAll is a passthrough to the real filesystem.
func (s *Sysfs) MkdirAll(path string, perm os.FileMode) error {
	return s.real.MkdirAll(path, perm)
}

// Stat is a passthrough to the real filesystem.
func (s *Sysfs) Stat(path string) (os.FileInfo, error) {
	return s.real.Stat(path)
}

// Exists is a passthrough to the real filesystem.
func (s *Sysfs) Exists(path string) (bool, error) {
	return s.real.Exists(path)
}

func parseBusDir(dir string) (int, bool) {
	after, ok := strings.CutPrefix(filepath.Base(dir), "i2c-")
	if !ok {
		return 0, false
	}

	bus, err := strconv.Atoi(after)
	if err != nil {
		return 0, false
	}

	return bus, true
}

func parseName(name string) (int, int, bool) {
	busText, addrText, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, false
	}

	bus, err := strconv.Atoi(busText)
	if err != nil {
		return 0, 0, false
	}

	addr, err := strconv.ParseInt(addrText, 16, 16)
	if err != nil {
		return 0, 0, false
	}

	return bus, int(addr), true
}

var _ efs.FS = (*Sysfs)(nil)
