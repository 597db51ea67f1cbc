// Package fs provides the filesystem seam used for sysfs and device access.
//
// The main types are:
//   - [FS]: interface for the filesystem operations the device layer needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] package
//   - [Chaos]: testing implementation that injects random failures
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.OpenFile("/sys/bus/i2c/devices/0-0054/eeprom", os.O_RDWR, 0)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fs

import (
	"io"
	"os"
)

// File is an open file handle. [os.File] satisfies it.
//
// Like [os.File], Read may return fewer bytes than requested with a nil
// error, and Write may return n < len(p) with a non-nil error. Callers that
// need complete transfers must loop.
type File interface {
	io.ReadWriteCloser
	io.Seeker
}

// FS defines the filesystem operations used by the device layer.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection or a simulated sysfs tree.
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package.
type FS interface {
	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary. See [os.WriteFile].
	//
	// sysfs control points (new_device, delete_device) are written with
	// WriteFile; the kernel acts on the single write.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
