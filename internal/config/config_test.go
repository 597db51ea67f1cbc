package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/eepromkv/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func Test_Load_Returns_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := config.Default()
	want.EffectiveCwd = dir

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	if got, want := cfg.Level(), logrus.WarnLevel; got != want {
		t.Fatalf("level=%v, want=%v", got, want)
	}
}

func Test_Load_Applies_Precedence_When_All_Layers_Set(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "eepromkv", "config.json"), `{
		// global defaults
		"type": "24c02",
		"bus": 1,
		"address": "0x50",
		"chunk_size": 64,
	}`)
	writeFile(t, filepath.Join(dir, ".eepromkv.json"), `{"type": "24c64", "address": 84}`)

	bus := 3

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env: map[string]string{
			"XDG_CONFIG_HOME":       xdg,
			"SYSFS_I2C_DEVICES_DIR": "/tmp/sysfs",
			"EEPROMKV_LOG_LEVEL":    "debug",
		},
		Overrides: config.Config{Bus: &bus},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Type, "24c64"; got != want {
		t.Fatalf("type=%q, want=%q", got, want)
	}

	if got, want := *cfg.Bus, 3; got != want {
		t.Fatalf("bus=%d, want=%d", got, want)
	}

	addr, err := cfg.Address.Int()
	if err != nil || addr != 0x54 {
		t.Fatalf("address=%d (%v), want=0x54", addr, err)
	}

	if got, want := cfg.ChunkSize, 64; got != want {
		t.Fatalf("chunk_size=%d, want=%d", got, want)
	}

	if got, want := cfg.SysfsDir, "/tmp/sysfs"; got != want {
		t.Fatalf("sysfs_dir=%q, want=%q", got, want)
	}

	if got, want := cfg.Level(), logrus.DebugLevel; got != want {
		t.Fatalf("level=%v, want=%v", got, want)
	}

	want := config.Sources{
		Global:  filepath.Join(xdg, "eepromkv", "config.json"),
		Project: filepath.Join(dir, ".eepromkv.json"),
		Env:     []string{"SYSFS_I2C_DEVICES_DIR", "EEPROMKV_LOG_LEVEL"},
	}
	if diff := cmp.Diff(want, cfg.Sources); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}
}

func Test_Load_Uses_Explicit_File_Instead_Of_Project_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".eepromkv.json"), `{"type": "24c02"}`)
	writeFile(t, filepath.Join(dir, "board.json"), `{"type": "24c32"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "board.json"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Type, "24c32"; got != want {
		t.Fatalf("type=%q, want=%q", got, want)
	}
}

func Test_Load_Returns_Error_When_Explicit_File_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.LoadInput{WorkDirOverride: t.TempDir(), ConfigPath: "nope.json"})

	if !errors.Is(err, config.ErrFileNotFound) {
		t.Fatalf("err=%v, want ErrFileNotFound", err)
	}
}

func Test_Load_Returns_ErrInvalid_Naming_File_When_Value_Bad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown_type", `{"type": "24c99"}`},
		{"address_out_of_range", `{"address": "0x80"}`},
		{"negative_bus", `{"bus": -1}`},
		{"bad_prober", `{"prober": "magic"}`},
		{"bad_level", `{"log_level": "loud"}`},
		{"unknown_key", `{"colour": "red"}`},
		{"not_json", `{invalid`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := filepath.Join(dir, ".eepromkv.json")
			writeFile(t, path, tt.content)

			_, err := config.Load(config.LoadInput{WorkDirOverride: dir})

			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("err=%v, want ErrInvalid", err)
			}

			if got := err.Error(); !strings.Contains(got, path) {
				t.Fatalf("error %q does not name %s", got, path)
			}
		})
	}
}

func Test_ParseAddress_Follows_Base_Prefix_Rules(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]int{"0x54": 0x54, "84": 84, "0o124": 84, "0b1010000": 0x50, "0": 0} {
		got, err := config.ParseAddress(in)
		if err != nil {
			t.Fatalf("ParseAddress(%q): %v", in, err)
		}

		if got != want {
			t.Fatalf("ParseAddress(%q)=%d, want=%d", in, got, want)
		}
	}

	for _, in := range []string{"", "0x80", "-1", "fifty"} {
		if _, err := config.ParseAddress(in); err == nil {
			t.Fatalf("ParseAddress(%q) succeeded, want error", in)
		}
	}
}
