package eeprom_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/eepromkv/pkg/eeprom"
	"github.com/calvinalkan/eepromkv/pkg/eeprom/eepromtest"
	"github.com/calvinalkan/eepromkv/pkg/fs"
)

func Test_DeviceName_Formats_Bus_And_Four_Digit_Hex_Address(t *testing.T) {
	if got, want := eeprom.DeviceName(0, 0x54), "0-0054"; got != want {
		t.Fatalf("DeviceName=%q, want=%q", got, want)
	}

	if got, want := eeprom.DeviceName(12, 0x7f), "12-007f"; got != want {
		t.Fatalf("DeviceName=%q, want=%q", got, want)
	}
}

func Test_Binder_Bind_Writes_Type_And_Decimal_Address_When_Client_Missing(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 0)
	b := eeprom.NewBinder(sysfs, sysfs.Root(), nil)

	if err := b.Bind(0, 0x54, "24c64"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	want := []string{filepath.Join(sysfs.Root(), "i2c-0", "new_device") + ": 24c64 84\n"}
	if diff := cmp.Diff(want, sysfs.Controls()); diff != "" {
		t.Fatalf("controls mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(b.DataPath(0, 0x54))
	if err != nil {
		t.Fatalf("stat eeprom: %v", err)
	}

	if got, want := info.Size(), int64(8192); got != want {
		t.Fatalf("eeprom size=%d, want=%d", got, want)
	}
}

func Test_Binder_Bind_Skips_New_Device_When_Client_Already_Exists(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 0)
	b := eeprom.NewBinder(sysfs, sysfs.Root(), nil)

	if err := b.Bind(0, 0x54, "24c02"); err != nil {
		t.Fatalf("first Bind: %v", err)
	}

	if err := b.Bind(0, 0x54, "24c02"); err != nil {
		t.Fatalf("second Bind: %v", err)
	}

	if got, want := len(sysfs.Controls()), 1; got != want {
		t.Fatalf("control writes=%d, want=%d", got, want)
	}
}

func Test_Binder_Bind_Returns_ErrBind_When_Eeprom_File_Does_Not_Appear(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 0)
	sysfs.NoBind = true
	b := eeprom.NewBinder(sysfs, sysfs.Root(), nil)

	err := b.Bind(0, 0x50, "24c02")

	if !errors.Is(err, eeprom.ErrBind) {
		t.Fatalf("err=%v, want ErrBind", err)
	}
}

func Test_Binder_Bind_Returns_ErrBind_When_Control_Point_Write_Fails(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 0)
	chaos := fs.NewChaos(sysfs, 1, fs.ChaosConfig{ControlWriteFailRate: 1.0})
	b := eeprom.NewBinder(chaos, sysfs.Root(), nil)

	err := b.Bind(0, 0x50, "24c02")

	if !errors.Is(err, eeprom.ErrBind) {
		t.Fatalf("err=%v, want ErrBind", err)
	}

	if !fs.IsChaosErr(err) {
		t.Fatalf("err=%v should wrap the injected failure", err)
	}

	if sysfs.Bound(0, 0x50) {
		t.Fatalf("client exists after failed bind")
	}
}

func Test_Binder_Unbind_Is_NoOp_When_Client_Missing(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 0)
	b := eeprom.NewBinder(sysfs, sysfs.Root(), nil)

	if err := b.Unbind(0, 0x54); err != nil {
		t.Fatalf("Unbind: %v", err)
	}

	if got, want := len(sysfs.Controls()), 0; got != want {
		t.Fatalf("control writes=%d, want=%d", got, want)
	}
}

func Test_Binder_Unbind_Writes_Decimal_Address_To_Delete_Device(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 2)
	b := eeprom.NewBinder(sysfs, sysfs.Root(), nil)

	if err := b.Bind(2, 0x50, "24c32"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := b.Unbind(2, 0x50); err != nil {
		t.Fatalf("Unbind: %v", err)
	}

	controls := sysfs.Controls()
	if got, want := controls[len(controls)-1], filepath.Join(sysfs.Root(), "i2c-2", "delete_device")+": 80\n"; got != want {
		t.Fatalf("last control=%q, want=%q", got, want)
	}

	if sysfs.Bound(2, 0x50) {
		t.Fatalf("client still present after Unbind")
	}

	// A second unbind finds nothing to do.
	if err := b.Unbind(2, 0x50); err != nil {
		t.Fatalf("second Unbind: %v", err)
	}
}

func Test_Binder_BusExists_Reports_Adapter_Directories(t *testing.T) {
	sysfs := eepromtest.NewSysfs(t, 1)
	b := eeprom.NewBinder(sysfs, sysfs.Root(), nil)

	ok, err := b.BusExists(1)
	if err != nil || !ok {
		t.Fatalf("BusExists(1)=%v,%v, want true,nil", ok, err)
	}

	ok, err = b.BusExists(4)
	if err != nil || ok {
		t.Fatalf("BusExists(4)=%v,%v, want false,nil", ok, err)
	}
}
