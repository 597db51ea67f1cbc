package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, a)
		},
	}
}

func execPrintConfig(io *IO, a *app) error {
	cfg := a.cfg

	io.Println("effective_cwd=" + cfg.EffectiveCwd)

	if cfg.Type != "" {
		io.Println("type=" + cfg.Type)
	}

	if cfg.Bus != nil {
		io.Println("bus=" + strconv.Itoa(*cfg.Bus))
	}

	if cfg.Address != "" {
		io.Println("address=" + string(cfg.Address))
	}

	io.Println("sysfs_dir=" + cfg.SysfsDir)
	io.Println("dev_dir=" + cfg.DevDir)
	io.Println("prober=" + cfg.Prober)

	if cfg.I2CDetectPath != "" {
		io.Println("i2cdetect_path=" + cfg.I2CDetectPath)
	}

	io.Println("chunk_size=" + strconv.Itoa(cfg.ChunkSize))
	io.Println("log_level=" + cfg.LogLevel)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" && len(cfg.Sources.Env) == 0 {
		io.Println("(defaults only)")

		return nil
	}

	if cfg.Sources.Global != "" {
		io.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		io.Println("project_config=" + cfg.Sources.Project)
	}

	if len(cfg.Sources.Env) > 0 {
		io.Println("env=" + strings.Join(cfg.Sources.Env, ","))
	}

	return nil
}
