package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/eepromkv/pkg/eeprom/eepromtest"
	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

// Test device identity used by [NewCLI].
const (
	TestBus  = 0
	TestAddr = 0x54
	TestType = "24c64"
)

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory, a simulated sysfs tree with one blank chip,
// and environment variables.
type CLI struct {
	t     *testing.T
	Dir   string
	Env   map[string]string
	Sysfs *eepromtest.Sysfs
	Deps  Deps
}

// NewCLI creates a new test CLI with a temp directory and a blank 24c64 at
// [TestAddr] on bus [TestBus].
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	sysfs := eepromtest.NewSysfs(t, TestBus)
	sysfs.AddChip(TestBus, TestAddr)

	return &CLI{
		t:     t,
		Dir:   t.TempDir(),
		Sysfs: sysfs,
		Env: map[string]string{
			"HOME":                  t.TempDir(),
			"SYSFS_I2C_DEVICES_DIR": sysfs.Root(),
		},
		Deps: Deps{
			FS: sysfs,
			Prober: i2c.ProberFunc(func(ctx context.Context, bus, addr int) (bool, error) {
				return sysfs.Prober().Probe(ctx, bus, addr)
			}),
			IsTerminal: func(uintptr) bool { return false },
		},
	}
}

// Device returns the -t/-b/-a flags for the test chip.
func (r *CLI) Device() []string {
	return []string{"-t", TestType, "-b", fmt.Sprint(TestBus), "-a", fmt.Sprintf("0x%02x", TestAddr)}
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "eepromkv" or "--cwd" - those are added automatically.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.RunWithInput("", args...)
}

// RunWithInput executes the CLI with stdin and returns stdout, stderr, and exit code.
// stdin must be a string or io.Reader; panics otherwise.
func (r *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader
	switch v := stdin.(type) {
	case string:
		inReader = strings.NewReader(v)
	case io.Reader:
		inReader = v
	default:
		panic(fmt.Sprintf("stdin must be string or io.Reader, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"eepromkv", "--cwd", r.Dir}, args...)
	code := RunWith(r.Deps, inReader, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Also fails if stdout is not empty. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	if stdout != "" {
		r.t.Fatalf("command %v failed but stdout should be empty\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteFile writes content to a file relative to Dir.
func (r *CLI) WriteFile(name, content string) string {
	r.t.Helper()

	path := filepath.Join(r.Dir, name)

	err := os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		r.t.Fatalf("failed to write %s: %v", name, err)
	}

	return path
}

// ReadFile returns the content of a file relative to Dir.
func (r *CLI) ReadFile(name string) string {
	r.t.Helper()

	content, err := os.ReadFile(filepath.Join(r.Dir, name))
	if err != nil {
		r.t.Fatalf("failed to read %s: %v", name, err)
	}

	return string(content)
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
