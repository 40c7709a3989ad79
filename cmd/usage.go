package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cloud/internal/pkg/devices"
)

var _usageCmdOpts struct {
	device string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report energy usage from metering devices",
}

var usageNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Live power readings from every metering device",

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withPowerTools(doUsageNow)
	},
}

var usageDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Per-day energy over the last month, per metering device",

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withPowerTools(doUsageDaily)
	},
}

var usageMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Per-month energy over the last year, per metering device",

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withPowerTools(doUsageMonthly)
	},
}

func init() {
	usageCmd.PersistentFlags().StringVar(&_usageCmdOpts.device, "device", "", "only devices whose alias contains this fragment")
	errPanic(viper.GetViper().BindPFlag("usage.device", usageCmd.PersistentFlags().Lookup("device")))

	usageCmd.AddCommand(usageNowCmd, usageDailyCmd, usageMonthlyCmd)
	rootCmd.AddCommand(usageCmd)
}

func withPowerTools(fn func(context.Context, *devices.PowerTools) error) error {
	ctx, cancel := cmdContext()
	defer cancel()

	m, err := newManager(ctx)
	if err != nil {
		return err
	}

	return fn(ctx, devices.NewPowerTools(m))
}

func doUsageNow(ctx context.Context, tools *devices.PowerTools) error {
	readings, err := tools.RealtimeUsage(ctx, _usageCmdOpts.device)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tPOWER (W)\tVOLTAGE (V)\tCURRENT (A)\tTOTAL (kWh)")
	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.3f\t%.3f\n",
			r.Device.Alias(), r.Usage.Power, r.Usage.Voltage, r.Usage.Current, r.Usage.Total)
	}

	return w.Flush()
}

func doUsageDaily(ctx context.Context, tools *devices.PowerTools) error {
	reports, err := tools.DayUsage(ctx, _usageCmdOpts.device)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tDATE\tENERGY (kWh)")
	for _, report := range reports {
		for _, day := range report.Days {
			fmt.Fprintf(w, "%s\t%04d-%02d-%02d\t%.3f\n",
				report.Device.Alias(), day.Year, day.Month, day.Day, day.Energy)
		}
	}

	return w.Flush()
}

func doUsageMonthly(ctx context.Context, tools *devices.PowerTools) error {
	reports, err := tools.MonthUsage(ctx, _usageCmdOpts.device)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMONTH\tENERGY (kWh)")
	for _, report := range reports {
		for _, month := range report.Months {
			fmt.Fprintf(w, "%s\t%04d-%02d\t%.3f\n",
				report.Device.Alias(), month.Year, month.Month, month.Energy)
		}
	}

	return w.Flush()
}
