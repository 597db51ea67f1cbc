package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/eepromkv/pkg/eeprom"
)

// ErrHexRequired reports raw write without data.
var ErrHexRequired = errors.New("data missing (use --hex)")

// RawCmd returns the raw command.
func RawCmd(a *app) *Command {
	flags := flag.NewFlagSet("raw", flag.ContinueOnError)
	df := a.addDeviceFlags(flags, true)
	offset := flags.String("offset", "0", "Start offset (0x prefix for hex)")
	length := flags.Int("length", -1, "Bytes to read; default is to the end of the device (read)")
	data := flags.String("hex", "", "Bytes to write as hex, e.g. a16161 (write)")

	return &Command{
		Flags: flags,
		Usage: "raw <read|write> -t <type> -b <bus> -a <addr> [--offset N]",
		Short: "Read or write raw EEPROM bytes",
		Long: `Access the EEPROM as plain bytes, bypassing the stored file.

read prints a hex dump. write stores the bytes given with --hex. Writing over
the start of the device changes or destroys the stored file.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: want one of read, write", ErrSubcommand)
			}

			off, err := parseOffset(*offset)
			if err != nil {
				return err
			}

			switch args[0] {
			case "read":
				return execRawRead(ctx, o, a, df, off, *length)
			case "write":
				return execRawWrite(ctx, o, a, df, off, *data)
			default:
				return fmt.Errorf("%w: %s", ErrSubcommand, args[0])
			}
		},
	}
}

func execRawRead(ctx context.Context, o *IO, a *app, df *deviceFlags, offset int64, length int) error {
	return a.withDevice(ctx, o, df, func(dev *eeprom.Device) error {
		n := length
		if n < 0 {
			n = dev.Size() - int(offset)
		}

		data, err := dev.Read(offset, n)
		if err != nil {
			return err
		}

		o.Printf("%s", hexDump(offset, data))

		return nil
	})
}

func execRawWrite(ctx context.Context, o *IO, a *app, df *deviceFlags, offset int64, text string) error {
	if text == "" {
		return ErrHexRequired
	}

	data, err := hex.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	var n int

	err = a.withDevice(ctx, o, df, func(dev *eeprom.Device) error {
		var err error

		n, err = dev.Write(offset, data)

		return err
	})
	if err != nil {
		return err
	}

	o.Printf("Wrote %d bytes at 0x%x\n", n, offset)

	return nil
}

// hexDump formats data like hex.Dump with offsets starting at base.
func hexDump(base int64, data []byte) string {
	var sb strings.Builder

	for start := 0; start < len(data); start += 16 {
		end := min(start+16, len(data))
		line := data[start:end]

		fmt.Fprintf(&sb, "%08x ", base+int64(start))

		for i := range 16 {
			if i == 8 {
				sb.WriteByte(' ')
			}

			if i < len(line) {
				fmt.Fprintf(&sb, " %02x", line[i])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString("  |")

		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}

		sb.WriteString("|\n")
	}

	return sb.String()
}
