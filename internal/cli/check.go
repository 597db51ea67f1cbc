package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// CheckCmd returns the check command.
func CheckCmd(a *app) *Command {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	df := a.addDeviceFlags(flags, false)

	return &Command{
		Flags: flags,
		Usage: "check -b <bus> -a <addr>",
		Short: "Check if an EEPROM device is present",
		Long: `Probe the I2C address without binding the device.

Prints "Device detected" and exits 0 when the address answers, or
"Device not detected" and exits 1 when it does not.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execCheck(ctx, o, a, df)
		},
	}
}

func execCheck(ctx context.Context, o *IO, a *app, df *deviceFlags) error {
	bus, addr, err := df.busAddr()
	if err != nil {
		return err
	}

	present, err := a.selectProber().Probe(ctx, bus, addr)
	if err != nil {
		return err
	}

	if !present {
		o.Println("Device not detected")

		return exitStatus(1)
	}

	o.Println("Device detected")

	return nil
}
