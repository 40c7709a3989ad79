package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cloud/internal/pkg/devices"
	"github.com/jake-scott/kasa-cloud/internal/pkg/logging"
)

var _devicesCmdOpts struct {
	showState bool
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices registered to the cloud account",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doDevices(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&_devicesCmdOpts.showState, "state", false, "query each device for its power state")
	errPanic(viper.GetViper().BindPFlag("devices.state", devicesCmd.Flags().Lookup("state")))

	rootCmd.AddCommand(devicesCmd)
}

// newManager logs in to the configured cloud account(s)
func newManager(ctx context.Context) (*devices.Manager, error) {
	opts := []devices.ManagerOption{
		devices.WithMFAResolver(promptMFACode),
	}

	if host := viper.GetString("kasa.api-host"); host != "" {
		opts = append(opts, devices.WithAPIHost(host))
	}
	if termID := viper.GetString("kasa.term-id"); termID != "" {
		opts = append(opts, devices.WithTermID(termID))
	}
	if viper.GetBool("kasa.include-tapo") {
		opts = append(opts, devices.WithTapo())
	}

	return devices.NewManager(ctx,
		viper.GetString("kasa.username"), viper.GetString("kasa.password"), opts...)
}

// cmdContext returns the context every top level command runs under,
// tagged with a fresh correlation ID
func cmdContext() (context.Context, context.CancelFunc) {
	ctx := logging.WithRequestID(context.Background(), uuid.New().String())
	return context.WithTimeout(ctx, time.Minute*2)
}

func doDevices() error {
	ctx, cancel := cmdContext()
	defer cancel()

	m, err := newManager(ctx)
	if err != nil {
		return err
	}

	all, err := m.ListDevices(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tTYPE\tBRAND\tDEVICE ID\tOUTLET ID\tSTATE")

	for _, d := range all {
		state := "-"
		if _devicesCmdOpts.showState {
			switch on, err := d.IsOn(ctx); {
			case err != nil:
				state = "?"
			case on:
				state = "on"
			default:
				state = "off"
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Alias(), d.Type, d.CloudBrand, d.DeviceID, d.ChildID, state)
	}

	return w.Flush()
}
