package devices

import (
	"context"
	"sort"
	"time"

	"github.com/korovkin/limiter"

	"github.com/jake-scott/kasa-cloud/internal/pkg/logging"
)

const usageFetchConcurrency = 5

// PowerTools runs energy queries across every metering device known to
// a Manager.  Per-device fetches run concurrently with a bounded
// limit; a device that fails to answer is logged and skipped rather
// than failing the whole report.
type PowerTools struct {
	manager *Manager
	now     func() time.Time
}

// NewPowerTools returns a PowerTools over the manager's devices.
func NewPowerTools(manager *Manager) *PowerTools {
	return &PowerTools{
		manager: manager,
		now:     time.Now,
	}
}

// EmeterDevices returns the devices that report energy readings,
// optionally narrowed to aliases containing fragment.  For multi-outlet
// strips the metering is per outlet, so the parents are excluded and
// the outlets included.
func (p *PowerTools) EmeterDevices(ctx context.Context, fragment string) ([]*Device, error) {
	var devices []*Device
	var err error

	if fragment == "" {
		devices, err = p.manager.ListDevices(ctx)
	} else {
		devices, err = p.manager.FindDevices(ctx, fragment)
	}
	if err != nil {
		return nil, err
	}

	var metered []*Device
	for _, d := range devices {
		if d.HasEmeter() {
			metered = append(metered, d)
		}
	}

	return metered, nil
}

// DeviceRealtimeUsage pairs a live reading with its device.
type DeviceRealtimeUsage struct {
	Device *Device
	Usage  RealtimeUsage
}

// DeviceDayUsage is a device's energy history by day.
type DeviceDayUsage struct {
	Device *Device
	Days   []DayUsage
}

// DeviceMonthUsage is a device's energy history by month.
type DeviceMonthUsage struct {
	Device *Device
	Months []MonthUsage
}

// RealtimeUsage polls the matching metering devices for a live power
// reading.
func (p *PowerTools) RealtimeUsage(ctx context.Context, fragment string) ([]DeviceRealtimeUsage, error) {
	devices, err := p.EmeterDevices(ctx, fragment)
	if err != nil {
		return nil, err
	}

	results := make([]*DeviceRealtimeUsage, len(devices))

	limit := limiter.NewConcurrencyLimiter(usageFetchConcurrency)
	for i, d := range devices {
		i, d := i, d
		limit.ExecuteWithTicket(func(ticket int) {
			usage, err := d.RealtimeUsage(ctx)
			if err != nil || usage == nil {
				logging.Logger(ctx).WithError(err).
					WithField("device", d.Alias()).
					Warn("Skipping device, realtime usage query failed")
				return
			}
			results[i] = &DeviceRealtimeUsage{Device: d, Usage: *usage}
		})
	}
	limit.Wait()

	return compactRealtime(results), nil
}

// DayUsage reports daily energy for the thirty days up to now, per
// matching metering device.  Readings straddle a month boundary so the current
// and previous months are fetched and merged.
func (p *PowerTools) DayUsage(ctx context.Context, fragment string) ([]DeviceDayUsage, error) {
	devices, err := p.EmeterDevices(ctx, fragment)
	if err != nil {
		return nil, err
	}

	now := p.now()

	// Not AddDate: that normalizes Mar 31 minus a month to Mar 3 and
	// would fetch the current month twice
	prevYear, prevMonth := now.Year(), int(now.Month())-1
	if prevMonth == 0 {
		prevYear, prevMonth = prevYear-1, 12
	}

	results := make([]*DeviceDayUsage, len(devices))

	limit := limiter.NewConcurrencyLimiter(usageFetchConcurrency)
	for i, d := range devices {
		i, d := i, d
		limit.ExecuteWithTicket(func(ticket int) {
			days, err := d.DayUsage(ctx, now.Year(), int(now.Month()))
			if err == nil {
				var prevDays []DayUsage
				prevDays, err = d.DayUsage(ctx, prevYear, prevMonth)
				days = append(days, prevDays...)
			}
			if err != nil {
				logging.Logger(ctx).WithError(err).
					WithField("device", d.Alias()).
					Warn("Skipping device, daily usage query failed")
				return
			}

			sort.Slice(days, func(a, b int) bool {
				if days[a].Year != days[b].Year {
					return days[a].Year < days[b].Year
				}
				if days[a].Month != days[b].Month {
					return days[a].Month < days[b].Month
				}
				return days[a].Day < days[b].Day
			})
			results[i] = &DeviceDayUsage{Device: d, Days: days}
		})
	}
	limit.Wait()

	return compactDays(results), nil
}

// MonthUsage reports monthly energy for the twelve months up to now,
// per matching metering device.  The current and previous years are fetched and
// merged.
func (p *PowerTools) MonthUsage(ctx context.Context, fragment string) ([]DeviceMonthUsage, error) {
	devices, err := p.EmeterDevices(ctx, fragment)
	if err != nil {
		return nil, err
	}

	year := p.now().Year()

	results := make([]*DeviceMonthUsage, len(devices))

	limit := limiter.NewConcurrencyLimiter(usageFetchConcurrency)
	for i, d := range devices {
		i, d := i, d
		limit.ExecuteWithTicket(func(ticket int) {
			months, err := d.MonthUsage(ctx, year)
			if err == nil {
				var prevMonths []MonthUsage
				prevMonths, err = d.MonthUsage(ctx, year-1)
				months = append(months, prevMonths...)
			}
			if err != nil {
				logging.Logger(ctx).WithError(err).
					WithField("device", d.Alias()).
					Warn("Skipping device, monthly usage query failed")
				return
			}

			sort.Slice(months, func(a, b int) bool {
				if months[a].Year != months[b].Year {
					return months[a].Year < months[b].Year
				}
				return months[a].Month < months[b].Month
			})
			results[i] = &DeviceMonthUsage{Device: d, Months: months}
		})
	}
	limit.Wait()

	return compactMonths(results), nil
}

func compactRealtime(in []*DeviceRealtimeUsage) []DeviceRealtimeUsage {
	out := make([]DeviceRealtimeUsage, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func compactDays(in []*DeviceDayUsage) []DeviceDayUsage {
	out := make([]DeviceDayUsage, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func compactMonths(in []*DeviceMonthUsage) []DeviceMonthUsage {
	out := make([]DeviceMonthUsage, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
