package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/eepromkv/internal/literal"
	"github.com/calvinalkan/eepromkv/pkg/cborfile"
)

// Error variables for the data command.
var (
	ErrNameRequired  = errors.New("name missing (use -n/--name)")
	ErrValueRequired = errors.New("value missing (use -v/--value)")
	ErrKeyNotFound   = errors.New("key not found")
)

// DataCmd returns the data command.
func DataCmd(a *app) *Command {
	flags := flag.NewFlagSet("data", flag.ContinueOnError)
	df := a.addDeviceFlags(flags, true)
	name := flags.StringP("name", "n", "", "Key name")
	value := flags.StringP("value", "v", "", "Value to store (put)")
	isLiteral := flags.Bool("literal", false, "Parse the value as a literal (number, bool, None, list, dictionary)")

	return &Command{
		Flags: flags,
		Usage: "data <get|put|delete> -t <type> -b <bus> -a <addr> -n <name>",
		Short: "Manage single values stored in the EEPROM file",
		Long: `Get, put or delete one key of the stored file.

Values are stored as text unless --literal is given. put and delete rewrite
the whole file. get of a missing key prints "key not found" to stderr and
exits 1; it does not print None.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: want one of get, put, delete", ErrSubcommand)
			}

			if *name == "" {
				return ErrNameRequired
			}

			switch args[0] {
			case "get":
				return execDataGet(ctx, o, a, df, *name)
			case "put":
				if !flags.Changed("value") {
					return ErrValueRequired
				}

				return execDataPut(ctx, o, a, df, *name, *value, *isLiteral)
			case "delete":
				return execDataDelete(ctx, o, a, df, *name)
			default:
				return fmt.Errorf("%w: %s", ErrSubcommand, args[0])
			}
		},
	}
}

func execDataGet(ctx context.Context, o *IO, a *app, df *deviceFlags, name string) error {
	var (
		v     any
		found bool
	)

	err := a.withFile(ctx, o, df, func(f *cborfile.File) error {
		var err error

		v, found, err = f.Get(name)

		return err
	})
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}

	text, err := renderValue(v)
	if err != nil {
		return err
	}

	o.Println(text)

	return nil
}

func execDataPut(ctx context.Context, o *IO, a *app, df *deviceFlags, name, raw string, isLiteral bool) error {
	var value any = raw

	if isLiteral {
		v, err := literal.ParseValue(raw)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}

		value = v
	}

	err := a.withFile(ctx, o, df, func(f *cborfile.File) error {
		return f.Put(name, value)
	})
	if err != nil {
		return err
	}

	o.Println("Value stored")

	return nil
}

func execDataDelete(ctx context.Context, o *IO, a *app, df *deviceFlags, name string) error {
	var removed bool

	err := a.withFile(ctx, o, df, func(f *cborfile.File) error {
		var err error

		removed, err = f.Delete(name)

		return err
	})
	if err != nil {
		return err
	}

	if !removed {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}

	o.Println("Value deleted")

	return nil
}
