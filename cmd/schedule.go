package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/kasa-cloud/internal/pkg/devices"
)

var _scheduleAddOpts struct {
	name   string
	action string
	start  string
	days   string
	date   string
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage a device's schedule rules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list <device alias>",
	Short: "List a device's schedule rules",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], doScheduleList)
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <device alias>",
	Short: "Add a schedule rule to a device",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], doScheduleAdd)
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <device alias> <rule id>",
	Short: "Delete one schedule rule from a device",
	Args:  cobra.ExactArgs(2),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], func(ctx context.Context, d *devices.Device) error {
			return d.DeleteScheduleRule(ctx, args[1])
		})
	},
}

var scheduleClearCmd = &cobra.Command{
	Use:   "clear <device alias>",
	Short: "Delete every schedule rule from a device",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("kasa.username", "kasa.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(args[0], func(ctx context.Context, d *devices.Device) error {
			return d.DeleteAllScheduleRules(ctx)
		})
	},
}

func init() {
	scheduleAddCmd.Flags().StringVar(&_scheduleAddOpts.name, "name", "Schedule Rule", "rule name")
	scheduleAddCmd.Flags().StringVar(&_scheduleAddOpts.action, "action", "on", "what the rule does: on or off")
	scheduleAddCmd.Flags().StringVar(&_scheduleAddOpts.start, "start", "", "trigger: HH:MM, sunrise or sunset")
	scheduleAddCmd.Flags().StringVar(&_scheduleAddOpts.days, "days", "", "repeat days as a comma list starting Sunday, eg. 0,1,1,1,1,1,0")
	scheduleAddCmd.Flags().StringVar(&_scheduleAddOpts.date, "date", "", "run once on this date, as YYYY-MM-DD")

	scheduleCmd.AddCommand(scheduleListCmd, scheduleAddCmd, scheduleDeleteCmd, scheduleClearCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func doScheduleList(ctx context.Context, d *devices.Device) error {
	rules, err := d.ScheduleRules(ctx)
	if err != nil {
		return err
	}
	if rules == nil {
		return errors.New("device did not answer")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tACTION\tSTART\tREPEATS")

	for i := range rules.RuleList {
		rule := &rules.RuleList[i]

		action := "off"
		if rule.TurnsOn() {
			action = "on"
		}

		var start string
		switch rule.StartType() {
		case devices.StartAtSunrise:
			start = "sunrise"
		case devices.StartAtSunset:
			start = "sunset"
		default:
			hour, minute := rule.StartClock()
			start = fmt.Sprintf("%02d:%02d", hour, minute)
		}

		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%t\n",
			rule.ID, rule.Name, rule.Enabled(), action, start, rule.Repeats())
	}

	return w.Flush()
}

func doScheduleAdd(ctx context.Context, d *devices.Device) error {
	builder := devices.NewRuleBuilder().
		WithName(_scheduleAddOpts.name).
		WithEnabled(true)

	switch _scheduleAddOpts.action {
	case "on":
		builder.WithAction(true)
	case "off":
		builder.WithAction(false)
	default:
		return errors.Errorf("action must be `on` or `off`, not `%s`", _scheduleAddOpts.action)
	}

	switch start := _scheduleAddOpts.start; start {
	case "sunrise":
		builder.WithSunriseStart()
	case "sunset":
		builder.WithSunsetStart()
	default:
		var hour, minute int
		if _, err := fmt.Sscanf(start, "%d:%d", &hour, &minute); err != nil {
			return errors.Errorf("start must be HH:MM, sunrise or sunset, not `%s`", start)
		}
		builder.WithTimeStart(hour, minute)
	}

	switch {
	case _scheduleAddOpts.days != "" && _scheduleAddOpts.date != "":
		return errors.New("--days and --date are mutually exclusive")
	case _scheduleAddOpts.days != "":
		days, err := parseDaySelector(_scheduleAddOpts.days)
		if err != nil {
			return err
		}
		builder.WithRepeatOnDays(days)
	case _scheduleAddOpts.date != "":
		var year, month, day int
		if _, err := fmt.Sscanf(_scheduleAddOpts.date, "%d-%d-%d", &year, &month, &day); err != nil {
			return errors.Errorf("date must be YYYY-MM-DD, not `%s`", _scheduleAddOpts.date)
		}
		builder.WithOneRun(year, month, day)
	default:
		return errors.New("one of --days or --date is required")
	}

	rule, err := builder.Build()
	if err != nil {
		return err
	}

	id, err := d.AddScheduleRule(ctx, rule)
	if err != nil {
		return err
	}

	fmt.Printf("added rule %s\n", id)
	return nil
}

func parseDaySelector(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 7 {
		return nil, errors.New("days must be a 7-element comma list starting Sunday")
	}

	days := make([]int, 7)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || (v != 0 && v != 1) {
			return nil, errors.Errorf("bad day selector element `%s`", part)
		}
		days[i] = v
	}

	return days, nil
}
