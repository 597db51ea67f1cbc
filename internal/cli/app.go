package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/eepromkv/internal/config"
	"github.com/calvinalkan/eepromkv/pkg/cborfile"
	"github.com/calvinalkan/eepromkv/pkg/eeprom"
	"github.com/calvinalkan/eepromkv/pkg/fs"
	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

// ErrFlagRequired reports a missing required command flag.
var ErrFlagRequired = errors.New("missing required flag")

// app carries resolved configuration and dependencies into commands.
type app struct {
	cfg        config.Config
	fsys       fs.FS
	prober     i2c.Prober
	isTerminal func(fd uintptr) bool
	env        map[string]string
	log        *logrus.Logger
}

func newApp(cfg config.Config, deps Deps, env map[string]string, errOut io.Writer) *app {
	a := &app{
		cfg:        cfg,
		fsys:       deps.FS,
		prober:     deps.Prober,
		isTerminal: deps.IsTerminal,
		env:        env,
		log:        newLogger(errOut, cfg.Level()),
	}

	if a.fsys == nil {
		a.fsys = fs.NewReal()
	}

	if a.isTerminal == nil {
		a.isTerminal = isatty.IsTerminal
	}

	return a
}

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	return log
}

func (a *app) commands() []*Command {
	return []*Command{
		CheckCmd(a),
		FileCmd(a),
		DataCmd(a),
		RawCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a),
	}
}

// path resolves p against the effective working directory.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(a.cfg.EffectiveCwd, p)
}

// deviceFlags are the -t/-b/-a flags shared by device commands. Defaults come
// from configuration.
type deviceFlags struct {
	typ  string
	bus  int
	addr string
}

func (a *app) addDeviceFlags(flags *flag.FlagSet, withType bool) *deviceFlags {
	df := &deviceFlags{}

	bus := -1
	if a.cfg.Bus != nil {
		bus = *a.cfg.Bus
	}

	if withType {
		flags.StringVarP(&df.typ, "type", "t", a.cfg.Type, "EEPROM device type, e.g. 24c64")
	}

	flags.IntVarP(&df.bus, "bus", "b", bus, "I2C bus number")
	flags.StringVarP(&df.addr, "address", "a", string(a.cfg.Address), "I2C address (0x54, 84, 0o124)")

	return df
}

func (df *deviceFlags) busAddr() (int, int, error) {
	if df.bus < 0 {
		return 0, 0, fmt.Errorf("%w: --bus", ErrFlagRequired)
	}

	if df.addr == "" {
		return 0, 0, fmt.Errorf("%w: --address", ErrFlagRequired)
	}

	addr, err := config.ParseAddress(df.addr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", eeprom.ErrConfig, err)
	}

	return df.bus, addr, nil
}

// selectProber builds the presence check named by configuration.
func (a *app) selectProber() i2c.Prober {
	if a.prober != nil {
		return a.prober
	}

	switch a.cfg.Prober {
	case config.ProberNone:
		return i2c.Assume{}
	case config.ProberIoctl:
		return i2c.NewIoctl(a.cfg.DevDir)
	}

	if a.cfg.I2CDetectPath != "" {
		return i2c.NewDetect(a.cfg.I2CDetectPath, nil)
	}

	detect, err := i2c.LookupDetect()
	if err != nil {
		a.log.WithError(err).Warn("i2cdetect not available, assuming device is present")

		return i2c.Assume{}
	}

	return detect
}

func (a *app) openDevice(ctx context.Context, df *deviceFlags) (*eeprom.Device, error) {
	if df.typ == "" {
		return nil, fmt.Errorf("%w: --type", ErrFlagRequired)
	}

	bus, addr, err := df.busAddr()
	if err != nil {
		return nil, err
	}

	return eeprom.Open(ctx, eeprom.Config{
		Type:     df.typ,
		Bus:      bus,
		Addr:     addr,
		SysfsDir: a.cfg.SysfsDir,
		FS:       a.fsys,
		Prober:   a.selectProber(),
		Logger:   a.log,
	})
}

// withDevice opens the device, runs fn and releases the device, also when fn
// panics. A release failure after fn succeeded is reported as a warning.
func (a *app) withDevice(ctx context.Context, o *IO, df *deviceFlags, fn func(dev *eeprom.Device) error) (err error) {
	dev, err := a.openDevice(ctx, df)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := dev.Close()
		if closeErr == nil {
			return
		}

		if err != nil {
			err = errors.Join(err, closeErr)

			return
		}

		o.Warn("releasing "+dev.Name(), closeErr.Error())
	}()

	return fn(dev)
}

// withFile is withDevice with a structured file on top.
func (a *app) withFile(ctx context.Context, o *IO, df *deviceFlags, fn func(f *cborfile.File) error) error {
	return a.withDevice(ctx, o, df, func(dev *eeprom.Device) error {
		f := cborfile.New(dev,
			cborfile.WithChunkSize(a.cfg.ChunkSize),
			cborfile.WithLogger(a.log.WithField("device", dev.Name())),
		)

		return fn(f)
	})
}

func parseOffset(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}

	return v, nil
}
