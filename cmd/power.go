package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/kasa-cloud/internal/pkg/devices"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Switch a device on or off",
}

var powerOnCmd = &cobra.Command{
	Use:   "on <device alias>",
	Short: "Turn a device on",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], func(ctx context.Context, d *devices.Device) error {
			return d.PowerOn(ctx)
		})
	},
}

var powerOffCmd = &cobra.Command{
	Use:   "off <device alias>",
	Short: "Turn a device off",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], func(ctx context.Context, d *devices.Device) error {
			return d.PowerOff(ctx)
		})
	},
}

var powerToggleCmd = &cobra.Command{
	Use:   "toggle <device alias>",
	Short: "Flip a device's power state",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], func(ctx context.Context, d *devices.Device) error {
			return d.Toggle(ctx)
		})
	},
}

var powerStateCmd = &cobra.Command{
	Use:   "state <device alias>",
	Short: "Report a device's power state",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], func(ctx context.Context, d *devices.Device) error {
			on, err := d.IsOn(ctx)
			if err != nil {
				return err
			}

			state := "off"
			if on {
				state = "on"
			}
			fmt.Printf("%s is %s\n", d.Alias(), state)
			return nil
		})
	},
}

var ledCmd = &cobra.Command{
	Use:   "led <on|off> <device alias>",
	Short: "Switch a device's status LED",
	Args:  cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch args[0] {
		case "on":
			on = true
		case "off":
		default:
			return errors.Errorf("led state must be `on` or `off`, not `%s`", args[0])
		}

		return withDevice(args[1], func(ctx context.Context, d *devices.Device) error {
			return d.SetLED(ctx, on)
		})
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},
}

func init() {
	powerCmd.AddCommand(powerOnCmd, powerOffCmd, powerToggleCmd, powerStateCmd)
	rootCmd.AddCommand(powerCmd)
	rootCmd.AddCommand(ledCmd)
}

// withDevice resolves a device by its exact alias and runs fn on it
func withDevice(alias string, fn func(context.Context, *devices.Device) error) error {
	ctx, cancel := cmdContext()
	defer cancel()

	m, err := newManager(ctx)
	if err != nil {
		return err
	}

	d, err := m.FindDevice(ctx, alias)
	if err != nil {
		return err
	}
	if d == nil {
		return errors.Errorf("no device with alias `%s`", alias)
	}

	return fn(ctx, d)
}
