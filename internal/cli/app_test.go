package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/calvinalkan/eepromkv/internal/config"
	"github.com/calvinalkan/eepromkv/pkg/eeprom"
)

func Test_WithDevice_Releases_Device_When_Callback_Panics(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)

	cfg := config.Default()
	cfg.SysfsDir = c.Sysfs.Root()

	a := newApp(cfg, c.Deps, c.Env, io.Discard)
	o := NewIO(strings.NewReader(""), io.Discard, io.Discard)
	df := &deviceFlags{typ: TestType, bus: TestBus, addr: fmt.Sprintf("0x%02x", TestAddr)}

	var boundInside bool

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("callback panic was swallowed")
			}
		}()

		_ = a.withDevice(context.Background(), o, df, func(*eeprom.Device) error {
			boundInside = c.Sysfs.Bound(TestBus, TestAddr)

			panic("callback failed")
		})
	}()

	if !boundInside {
		t.Fatalf("device was not bound while callback ran")
	}

	if c.Sysfs.Bound(TestBus, TestAddr) {
		t.Fatalf("device still bound after callback panic")
	}
}
