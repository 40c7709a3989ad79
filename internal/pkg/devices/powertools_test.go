package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newMeteringCloud(t *testing.T) *fakeCloud {
	t.Helper()

	kasa := newFakeCloud(t)
	kasa.devices = []map[string]interface{}{
		deviceEntry("PLUG01", "Lounge Lamp", "HS103(US)"),
		deviceEntry("METER01", "Heater Meter", "HS110(UK)"),
	}
	return kasa
}

func fixedTime(p *PowerTools) {
	p.now = func() time.Time {
		return time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	}
}

func TestEmeterDevices(t *testing.T) {
	t.Run("only metering devices are selected", func(t *testing.T) {
		kasa := newMeteringCloud(t)
		m := newTestManager(t, kasa, nil)

		metered, err := NewPowerTools(m).EmeterDevices(context.Background(), "")

		require.NoError(t, err)
		require.Len(t, metered, 1)
		assert.Equal(t, "Heater Meter", metered[0].Alias())
	})

	t.Run("an alias fragment narrows the selection", func(t *testing.T) {
		kasa := newMeteringCloud(t)
		m := newTestManager(t, kasa, nil)

		metered, err := NewPowerTools(m).EmeterDevices(context.Background(), "heater")
		require.NoError(t, err)
		require.Len(t, metered, 1)

		metered, err = NewPowerTools(m).EmeterDevices(context.Background(), "garage")
		require.NoError(t, err)
		assert.Empty(t, metered)
	})

	t.Run("strip outlets are selected instead of their parent", func(t *testing.T) {
		kasa := newFakeCloud(t)
		kasa.devices = []map[string]interface{}{
			deviceEntry("STRIP01", "Workbench Strip", "HS300(US)"),
		}
		kasa.answer = func(deviceID string, request gjson.Result) string {
			if request.Get("system.get_sysinfo").Exists() {
				return hs300Sysinfo
			}
			return ""
		}
		m := newTestManager(t, kasa, nil)

		metered, err := NewPowerTools(m).EmeterDevices(context.Background(), "")

		require.NoError(t, err)
		require.Len(t, metered, 6)
		for _, d := range metered {
			assert.NotEmpty(t, d.ChildID)
		}
	})
}

func TestPowerToolsRealtime(t *testing.T) {
	t.Run("live readings are collected per metering device", func(t *testing.T) {
		kasa := newMeteringCloud(t)
		kasa.answer = func(deviceID string, request gjson.Result) string {
			if request.Get("emeter.get_realtime").Exists() {
				return `{"emeter":{"get_realtime":{"power_mw":120500,"voltage_mv":240100,"err_code":0}}}`
			}
			return ""
		}
		m := newTestManager(t, kasa, nil)

		readings, err := NewPowerTools(m).RealtimeUsage(context.Background(), "")

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, "Heater Meter", readings[0].Device.Alias())
		assert.InDelta(t, 120.5, readings[0].Usage.Power, 0.0001)
	})

	t.Run("an unresponsive device is skipped, not fatal", func(t *testing.T) {
		kasa := newMeteringCloud(t)
		m := newTestManager(t, kasa, nil)

		readings, err := NewPowerTools(m).RealtimeUsage(context.Background(), "")

		require.NoError(t, err)
		assert.Empty(t, readings)
	})
}

func TestPowerToolsDayUsage(t *testing.T) {
	kasa := newMeteringCloud(t)
	kasa.answer = func(deviceID string, request gjson.Result) string {
		stat := request.Get("emeter.get_daystat")
		if !stat.Exists() {
			return ""
		}

		switch stat.Get("month").Int() {
		case 8:
			return `{"emeter":{"get_daystat":{"day_list":[
				{"year":2026,"month":8,"day":2,"energy":0.8},
				{"year":2026,"month":8,"day":1,"energy":1.2}
			],"err_code":0}}}`
		case 7:
			return `{"emeter":{"get_daystat":{"day_list":[
				{"year":2026,"month":7,"day":31,"energy_wh":500}
			],"err_code":0}}}`
		}
		return ""
	}

	m := newTestManager(t, kasa, nil)
	tools := NewPowerTools(m)
	fixedTime(tools)

	reports, err := tools.DayUsage(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, reports, 1)

	// Both months merged, in ascending date order
	days := reports[0].Days
	require.Len(t, days, 3)
	assert.Equal(t, DayUsage{Year: 2026, Month: 7, Day: 31, Energy: 0.5}, days[0])
	assert.Equal(t, DayUsage{Year: 2026, Month: 8, Day: 1, Energy: 1.2}, days[1])
	assert.Equal(t, DayUsage{Year: 2026, Month: 8, Day: 2, Energy: 0.8}, days[2])
}

func TestPowerToolsDayUsageAtMonthEnd(t *testing.T) {
	// The 31st has no counterpart in the previous month; the previous
	// month must still be February, not a renormalised March
	var fetched []int64
	kasa := newMeteringCloud(t)
	kasa.answer = func(deviceID string, request gjson.Result) string {
		stat := request.Get("emeter.get_daystat")
		if !stat.Exists() {
			return ""
		}

		fetched = append(fetched, stat.Get("month").Int())
		switch stat.Get("month").Int() {
		case 3:
			return `{"emeter":{"get_daystat":{"day_list":[
				{"year":2026,"month":3,"day":1,"energy":1.0}
			],"err_code":0}}}`
		case 2:
			return `{"emeter":{"get_daystat":{"day_list":[
				{"year":2026,"month":2,"day":28,"energy":2.0}
			],"err_code":0}}}`
		}
		return ""
	}

	m := newTestManager(t, kasa, nil)
	tools := NewPowerTools(m)
	tools.now = func() time.Time {
		return time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC)
	}

	reports, err := tools.DayUsage(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.ElementsMatch(t, []int64{3, 2}, fetched)

	days := reports[0].Days
	require.Len(t, days, 2)
	assert.Equal(t, DayUsage{Year: 2026, Month: 2, Day: 28, Energy: 2.0}, days[0])
	assert.Equal(t, DayUsage{Year: 2026, Month: 3, Day: 1, Energy: 1.0}, days[1])
}

func TestPowerToolsDayUsageAtYearStart(t *testing.T) {
	type monthQuery struct{ year, month int64 }

	var fetched []monthQuery
	kasa := newMeteringCloud(t)
	kasa.answer = func(deviceID string, request gjson.Result) string {
		stat := request.Get("emeter.get_daystat")
		if !stat.Exists() {
			return ""
		}

		fetched = append(fetched, monthQuery{stat.Get("year").Int(), stat.Get("month").Int()})
		return `{"emeter":{"get_daystat":{"day_list":[],"err_code":0}}}`
	}

	m := newTestManager(t, kasa, nil)
	tools := NewPowerTools(m)
	tools.now = func() time.Time {
		return time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	}

	_, err := tools.DayUsage(context.Background(), "")

	require.NoError(t, err)
	assert.ElementsMatch(t, []monthQuery{{2026, 1}, {2025, 12}}, fetched)
}

func TestPowerToolsMonthUsage(t *testing.T) {
	kasa := newMeteringCloud(t)
	kasa.answer = func(deviceID string, request gjson.Result) string {
		stat := request.Get("emeter.get_monthstat")
		if !stat.Exists() {
			return ""
		}

		switch stat.Get("year").Int() {
		case 2026:
			return `{"emeter":{"get_monthstat":{"month_list":[
				{"year":2026,"month":1,"energy":40.0}
			],"err_code":0}}}`
		case 2025:
			return `{"emeter":{"get_monthstat":{"month_list":[
				{"year":2025,"month":12,"energy":55.5}
			],"err_code":0}}}`
		}
		return `{"emeter":{"get_monthstat":{"month_list":[],"err_code":0}}}`
	}

	m := newTestManager(t, kasa, nil)
	tools := NewPowerTools(m)
	fixedTime(tools)

	reports, err := tools.MonthUsage(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, reports, 1)

	months := reports[0].Months
	require.Len(t, months, 2)
	assert.Equal(t, MonthUsage{Year: 2025, Month: 12, Energy: 55.5}, months[0])
	assert.Equal(t, MonthUsage{Year: 2026, Month: 1, Energy: 40.0}, months[1])
}
