package devices

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

/*
 *  Metering telemetry.  Two firmware generations report the same
 *  quantities under different names and units: older firmware uses
 *  base units ("power", "voltage", "current", "total", "energy"),
 *  newer firmware milli-units ("power_mw", "voltage_mv", "current_ma",
 *  "total_wh", "energy_wh").  Everything normalizes to base units.
 */

// RealtimeUsage is a device's instantaneous metering snapshot.
type RealtimeUsage struct {
	Current float64 // amps
	Voltage float64 // volts
	Power   float64 // watts
	Total   float64 // kWh
	ErrCode int
}

// DayUsage is the energy consumed on one day.
type DayUsage struct {
	Year   int
	Month  int
	Day    int
	Energy float64 // kWh
}

// MonthUsage is the energy consumed in one month.
type MonthUsage struct {
	Year   int
	Month  int
	Energy float64 // kWh
}

// normalizedNumber reads field, falling back to the milli-unit
// milliField divided by scale.  The second return reports presence.
func normalizedNumber(raw []byte, field, milliField string, scale float64) (float64, bool) {
	if v := gjson.GetBytes(raw, field); v.Exists() {
		return v.Float(), true
	}
	if v := gjson.GetBytes(raw, milliField); v.Exists() {
		return v.Float() / scale, true
	}
	return 0, false
}

// parseRealtimeUsage normalizes a get_realtime response.
func parseRealtimeUsage(raw json.RawMessage) *RealtimeUsage {
	if raw == nil {
		return nil
	}

	var u RealtimeUsage
	u.Current, _ = normalizedNumber(raw, "current", "current_ma", 1000)
	u.Voltage, _ = normalizedNumber(raw, "voltage", "voltage_mv", 1000)
	u.Power, _ = normalizedNumber(raw, "power", "power_mw", 1000)
	u.Total, _ = normalizedNumber(raw, "total", "total_wh", 1000)
	u.ErrCode = int(gjson.GetBytes(raw, "err_code").Int())
	return &u
}

// parseDayUsage normalizes a get_daystat response's day_list.
func parseDayUsage(raw json.RawMessage) []DayUsage {
	if raw == nil {
		return nil
	}

	var days []DayUsage
	for _, entry := range gjson.GetBytes(raw, "day_list").Array() {
		energy, _ := normalizedNumber([]byte(entry.Raw), "energy", "energy_wh", 1000)
		days = append(days, DayUsage{
			Year:   int(entry.Get("year").Int()),
			Month:  int(entry.Get("month").Int()),
			Day:    int(entry.Get("day").Int()),
			Energy: energy,
		})
	}
	return days
}

// parseMonthUsage normalizes a get_monthstat response's month_list.
func parseMonthUsage(raw json.RawMessage) []MonthUsage {
	if raw == nil {
		return nil
	}

	var months []MonthUsage
	for _, entry := range gjson.GetBytes(raw, "month_list").Array() {
		energy, _ := normalizedNumber([]byte(entry.Raw), "energy", "energy_wh", 1000)
		months = append(months, MonthUsage{
			Year:   int(entry.Get("year").Int()),
			Month:  int(entry.Get("month").Int()),
			Energy: energy,
		})
	}
	return months
}
