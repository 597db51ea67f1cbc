// Package config resolves eepromkv settings from defaults, JSON-with-comments
// config files, the environment and command-line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/eepromkv/pkg/cborfile"
	"github.com/calvinalkan/eepromkv/pkg/eeprom"
	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

// Prober names accepted in the prober key.
const (
	ProberDetect = "i2cdetect"
	ProberIoctl  = "ioctl"
	ProberNone   = "none"
)

// Environment variables consulted by [Load].
const (
	EnvSysfsDir = "SYSFS_I2C_DEVICES_DIR"
	EnvLogLevel = "EEPROMKV_LOG_LEVEL"
)

// FileName is the project config file looked up in the working directory.
const FileName = ".eepromkv.json"

// Error variables for configuration loading.
var (
	ErrFileNotFound = errors.New("config file not found")
	ErrFileRead     = errors.New("cannot read config file")
	ErrInvalid      = errors.New("invalid config")
)

// Address is an I2C address as written in config: a JSON number or a
// string with an optional base prefix ("0x54", "84", "0o124").
type Address string

// UnmarshalJSON accepts both numbers and strings.
func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string

		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}

		*a = Address(s)

		return nil
	}

	var n json.Number

	err := json.Unmarshal(data, &n)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}

	*a = Address(n.String())

	return nil
}

// Int parses the address. The empty address is an error.
func (a Address) Int() (int, error) {
	return ParseAddress(string(a))
}

// ParseAddress parses s with base-prefix rules and checks it is a 7-bit
// address.
func ParseAddress(s string) (int, error) {
	if s == "" {
		return 0, errors.New("address is required")
	}

	v, err := strconv.ParseInt(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}

	if !i2c.ValidAddr(int(v)) {
		return 0, fmt.Errorf("address %s is outside 0x00..0x7f", s)
	}

	return int(v), nil
}

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Type          string  `json:"type,omitempty"`
	Bus           *int    `json:"bus,omitempty"`
	Address       Address `json:"address,omitempty"`
	SysfsDir      string  `json:"sysfs_dir,omitempty"`
	DevDir        string  `json:"dev_dir,omitempty"`
	Prober        string  `json:"prober,omitempty"`
	I2CDetectPath string  `json:"i2cdetect_path,omitempty"`
	ChunkSize     int     `json:"chunk_size,omitempty"`
	LogLevel      string  `json:"log_level,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks where configuration came from.
type Sources struct {
	Global  string   // Path to global config if loaded, empty otherwise
	Project string   // Path to project or explicit config if loaded, empty otherwise
	Env     []string // Environment variables that changed a value
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SysfsDir:  eeprom.DefaultSysfsDir,
		DevDir:    i2c.DefaultDevDir,
		Prober:    ProberDetect,
		ChunkSize: cborfile.DefaultChunkSize,
		LogLevel:  logrus.WarnLevel.String(),
	}
}

// Level returns the parsed log level.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}

	return lvl
}

// globalPath returns $XDG_CONFIG_HOME/eepromkv/config.json, falling back to
// ~/.config/eepromkv/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "eepromkv", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "eepromkv", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Env             map[string]string // environment variables
	Overrides       Config            // values from command flags; zero fields are ignored
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config (.eepromkv.json, if present) or explicit -c file
// 4. Environment
// 5. Overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	} else if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		globalCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, globalCfg)
			cfg.Sources.Global = path
		}
	}

	projectCfg, projectPath, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	if projectPath != "" {
		cfg = merge(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	if v := input.Env[EnvSysfsDir]; v != "" {
		cfg.SysfsDir = v
		cfg.Sources.Env = append(cfg.Sources.Env, EnvSysfsDir)
	}

	if v := input.Env[EnvLogLevel]; v != "" {
		cfg.LogLevel = v
		cfg.Sources.Env = append(cfg.Sources.Env, EnvLogLevel)
	}

	cfg = merge(cfg, input.Overrides)

	err = cfg.validate()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		path := filepath.Join(workDir, FileName)

		cfg, loaded, err := loadFile(path, false)
		if err != nil || !loaded {
			return Config{}, "", err
		}

		return cfg, path, nil
	}

	path := configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	_, statErr := os.Stat(path)
	if statErr != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrFileNotFound, configPath)
	}

	cfg, _, err := loadFile(path, true)
	if err != nil {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadFile loads a config file. If mustExist is false, a missing file
// returns loaded == false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrFileRead, path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}

	err = cfg.validate()
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes a JSON-with-comments config document. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var cfg Config

	err = dec.Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Type != "" {
		base.Type = overlay.Type
	}

	if overlay.Bus != nil {
		bus := *overlay.Bus
		base.Bus = &bus
	}

	if overlay.Address != "" {
		base.Address = overlay.Address
	}

	if overlay.SysfsDir != "" {
		base.SysfsDir = overlay.SysfsDir
	}

	if overlay.DevDir != "" {
		base.DevDir = overlay.DevDir
	}

	if overlay.Prober != "" {
		base.Prober = overlay.Prober
	}

	if overlay.I2CDetectPath != "" {
		base.I2CDetectPath = overlay.I2CDetectPath
	}

	if overlay.ChunkSize != 0 {
		base.ChunkSize = overlay.ChunkSize
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

// validate checks the fields that are set. Missing device identity is only
// an error once a command needs it.
func (c Config) validate() error {
	if c.Type != "" {
		if _, ok := eeprom.TypeSize(c.Type); !ok {
			return fmt.Errorf("unknown device type %q", c.Type)
		}
	}

	if c.Bus != nil && *c.Bus < 0 {
		return fmt.Errorf("invalid bus %d", *c.Bus)
	}

	if c.Address != "" {
		_, err := c.Address.Int()
		if err != nil {
			return err
		}
	}

	switch c.Prober {
	case "", ProberDetect, ProberIoctl, ProberNone:
	default:
		return fmt.Errorf("unknown prober %q (want %s, %s or %s)", c.Prober, ProberDetect, ProberIoctl, ProberNone)
	}

	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}

	if c.LogLevel != "" {
		_, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}

	return nil
}
