package i2c

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DetectBinary is the utility name looked up on PATH by [LookupDetect].
const DetectBinary = "i2cdetect"

// absentMarker is what i2cdetect prints for an address that did not ack.
const absentMarker = "--"

// RunFunc executes name with args and returns its output and exit status.
// A non-nil error means the process could not be run at all; a non-zero
// exit code is reported through code with err == nil.
type RunFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, code int, err error)

// Detect probes addresses by running i2cdetect.
//
// The binary path is fixed when the Detect is built; there is no lazy
// lookup on first use.
type Detect struct {
	path string
	run  RunFunc
}

// NewDetect returns a [Detect] that runs the binary at path.
// If run is nil, [ExecRun] is used.
func NewDetect(path string, run RunFunc) *Detect {
	if run == nil {
		run = ExecRun
	}

	return &Detect{path: path, run: run}
}

// LookupDetect finds i2cdetect on PATH and returns a [Detect] for it.
// Returns [exec.ErrNotFound] (wrapped) if the binary is not installed.
func LookupDetect() (*Detect, error) {
	path, err := exec.LookPath(DetectBinary)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", DetectBinary, err)
	}

	return NewDetect(path, nil), nil
}

// Path returns the i2cdetect binary this Detect runs.
func (d *Detect) Path() string {
	return d.path
}

// Probe runs "i2cdetect -y BUS ADDR ADDR" and reports whether the address
// cell is populated.
//
// A non-zero exit whose stderr mentions "Permission denied" returns
// [ErrPermission]. Any other non-zero exit reports the address as absent.
func (d *Detect) Probe(ctx context.Context, bus, addr int) (bool, error) {
	if err := checkArgs(bus, addr); err != nil {
		return false, err
	}

	a := strconv.Itoa(addr)

	stdout, stderr, code, err := d.run(ctx, d.path, "-y", strconv.Itoa(bus), a, a)
	if err != nil {
		return false, fmt.Errorf("%w: running %s: %w", ErrProbeFailed, d.path, err)
	}

	// A killed process exits non-zero; don't read that as "absent".
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	return parseDetect(stdout, stderr, code)
}

// parseDetect interprets i2cdetect output for a single-address scan.
func parseDetect(stdout, stderr []byte, code int) (bool, error) {
	if code != 0 {
		if bytes.Contains(stderr, []byte("Permission denied")) {
			return false, fmt.Errorf("%w: %s", ErrPermission, strings.TrimSpace(string(stderr)))
		}

		return false, nil
	}

	if bytes.Contains(stdout, []byte(absentMarker)) {
		return false, nil
	}

	return true, nil
}

// ExecRun runs a process with [exec.CommandContext] and captures its output.
func ExecRun(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}

		return nil, nil, -1, err
	}

	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

var _ Prober = (*Detect)(nil)
