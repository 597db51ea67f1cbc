package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/eepromkv/internal/literal"
	"github.com/calvinalkan/eepromkv/pkg/cborfile"
)

// Error variables for file and data commands.
var (
	ErrSubcommand   = errors.New("unknown subcommand")
	ErrFileRequired = errors.New("file path missing (use -f/--file)")
)

// FileCmd returns the file command.
func FileCmd(a *app) *Command {
	flags := flag.NewFlagSet("file", flag.ContinueOnError)
	df := a.addDeviceFlags(flags, true)
	file := flags.StringP("file", "f", "", "Local file with a dictionary literal (write)")
	output := flags.StringP("output", "o", "", "Write the rendering to this file instead of stdout (read)")
	format := flags.String("format", formatJSON, "Output format: json or yaml (read)")

	return &Command{
		Flags: flags,
		Usage: "file <read|write|erase> -t <type> -b <bus> -a <addr>",
		Short: "Manage the file stored in the EEPROM",
		Long: `Read, write or erase the CBOR file stored at the start of the EEPROM.

write parses -f as a dictionary literal: JSON, YAML, or Python-style
{'key': 'value', 'n': None, 'ok': True}. erase only marks the device empty.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: want one of read, write, erase", ErrSubcommand)
			}

			switch args[0] {
			case "read":
				return execFileRead(ctx, o, a, df, *output, *format)
			case "write":
				return execFileWrite(ctx, o, a, df, *file)
			case "erase":
				return execFileErase(ctx, o, a, df)
			default:
				return fmt.Errorf("%w: %s", ErrSubcommand, args[0])
			}
		},
	}
}

func execFileRead(ctx context.Context, o *IO, a *app, df *deviceFlags, output, format string) error {
	err := checkFormat(format)
	if err != nil {
		return err
	}

	var m map[string]any

	err = a.withFile(ctx, o, df, func(f *cborfile.File) error {
		var err error

		m, err = f.ReadFile()

		return err
	})
	if err != nil {
		return err
	}

	data, err := render(m, format)
	if err != nil {
		return err
	}

	if output == "" {
		o.Printf("%s", data)

		return nil
	}

	path := a.path(output)

	err = a.fsys.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	return nil
}

func execFileWrite(ctx context.Context, o *IO, a *app, df *deviceFlags, file string) error {
	if file == "" {
		return ErrFileRequired
	}

	src, err := a.fsys.ReadFile(a.path(file))
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	m, err := literal.ParseMap(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	err = a.withFile(ctx, o, df, func(f *cborfile.File) error {
		return f.WriteFile(m)
	})
	if err != nil {
		return err
	}

	o.Println("File stored")

	return nil
}

func execFileErase(ctx context.Context, o *IO, a *app, df *deviceFlags) error {
	err := a.withFile(ctx, o, df, func(f *cborfile.File) error {
		return f.EraseFile()
	})
	if err != nil {
		return err
	}

	o.Println("File erased")

	return nil
}
