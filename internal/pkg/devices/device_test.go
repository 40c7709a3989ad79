package devices

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jake-scott/kasa-cloud/internal/pkg/cloudapi"
)

// fakeTransport records passthrough requests and answers them from a
// canned script.
type fakeTransport struct {
	requests []fakeRequest
	respond  func(req fakeRequest) (json.RawMessage, error)
}

type fakeRequest struct {
	deviceID string
	body     []byte
}

func (f *fakeRequest) path(p string) gjson.Result {
	return gjson.GetBytes(f.body, p)
}

func (f *fakeTransport) Passthrough(ctx context.Context, deviceID string, requestData interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(requestData)
	if err != nil {
		return nil, err
	}

	req := fakeRequest{deviceID: deviceID, body: body}
	f.requests = append(f.requests, req)

	if f.respond == nil {
		return nil, nil
	}
	return f.respond(req)
}

func respondWith(raw string) func(fakeRequest) (json.RawMessage, error) {
	return func(fakeRequest) (json.RawMessage, error) {
		return json.RawMessage(raw), nil
	}
}

func plugInfo(model string) cloudapi.DeviceInfo {
	return cloudapi.DeviceInfo{
		DeviceID:    "8006ABCD",
		Alias:       "Lounge Lamp",
		DeviceModel: model,
		Status:      1,
	}
}

const hs300Sysinfo = `{"system":{"get_sysinfo":{
	"sw_ver": "1.0.19", "model": "HS300(US)", "alias": "Workbench Strip",
	"deviceId": "8006ABCD", "child_num": 6,
	"children": [
		{"id": "8006ABCD00", "state": 1, "alias": "Outlet 1", "on_time": 100},
		{"id": "8006ABCD01", "state": 0, "alias": "Outlet 2", "on_time": 0},
		{"id": "8006ABCD02", "state": 1, "alias": "Outlet 3", "on_time": 30},
		{"id": "8006ABCD03", "state": 0, "alias": "Outlet 4", "on_time": 0},
		{"id": "8006ABCD04", "state": 0, "alias": "Outlet 5", "on_time": 0},
		{"id": "8006ABCD05", "state": 1, "alias": "Outlet 6", "on_time": 7}
	]}}}`

func TestDeviceSysInfo(t *testing.T) {
	t.Run("sysinfo round-trips through the system target", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"system":{"get_sysinfo":{"alias":"Lounge Lamp","relay_state":1,"err_code":0}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		info, err := d.SysInfo(context.Background())

		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "Lounge Lamp", info.Alias)
		assert.Equal(t, 1, info.RelayState)

		require.Len(t, transport.requests, 1)
		req := transport.requests[0]
		assert.Equal(t, "8006ABCD", req.deviceID)
		assert.True(t, req.path("system").Exists())
		assert.False(t, req.path("context").Exists())
	})

	t.Run("an unreachable device yields no info and no error", func(t *testing.T) {
		d := NewDevice(plugInfo("HS103(US)"), "kasa", &fakeTransport{})

		info, err := d.SysInfo(context.Background())

		assert.NoError(t, err)
		assert.Nil(t, info)
	})
}

func TestDeviceChildren(t *testing.T) {
	t.Run("a power strip expands into six outlet devices", func(t *testing.T) {
		transport := &fakeTransport{respond: respondWith(hs300Sysinfo)}
		d := NewDevice(plugInfo("HS300(US)"), "kasa", transport)

		children, err := d.Children(context.Background())

		require.NoError(t, err)
		require.Len(t, children, 6)

		first := children[0]
		assert.Equal(t, "8006ABCD", first.DeviceID)
		assert.Equal(t, "8006ABCD00", first.ChildID)
		assert.Equal(t, "Outlet 1", first.Alias())
		assert.Equal(t, HS300Child, first.Type)
		assert.True(t, first.HasEmeter())
		assert.False(t, first.HasChildren())
	})

	t.Run("a plain plug has no children", func(t *testing.T) {
		transport := &fakeTransport{}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		children, err := d.Children(context.Background())

		assert.NoError(t, err)
		assert.Empty(t, children)
		assert.Empty(t, transport.requests)
	})
}

func TestChildAddressing(t *testing.T) {
	t.Run("outlet requests carry the child context", func(t *testing.T) {
		transport := &fakeTransport{respond: respondWith(hs300Sysinfo)}
		parent := NewDevice(plugInfo("HS300(US)"), "kasa", transport)

		children, err := parent.Children(context.Background())
		require.NoError(t, err)
		require.Len(t, children, 6)

		_, err = children[1].RawSysInfo(context.Background())
		require.NoError(t, err)

		req := transport.requests[len(transport.requests)-1]
		ids := req.path("context.child_ids")
		require.True(t, ids.Exists())
		assert.Equal(t, "8006ABCD01", ids.Array()[0].String())
	})

	t.Run("a shared parent response is demultiplexed to the outlet", func(t *testing.T) {
		transport := &fakeTransport{respond: respondWith(hs300Sysinfo)}
		parent := NewDevice(plugInfo("HS300(US)"), "kasa", transport)

		children, err := parent.Children(context.Background())
		require.NoError(t, err)

		on, err := children[0].IsOn(context.Background())
		require.NoError(t, err)
		assert.True(t, on)

		on, err = children[1].IsOn(context.Background())
		require.NoError(t, err)
		assert.False(t, on)
	})
}

func TestPowerControl(t *testing.T) {
	t.Run("plugs switch through the relay", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"system":{"set_relay_state":{"err_code":0}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		require.NoError(t, d.PowerOn(context.Background()))
		assert.Equal(t, int64(1), transport.requests[0].path("system.set_relay_state.state").Int())

		require.NoError(t, d.PowerOff(context.Background()))
		assert.Equal(t, int64(0), transport.requests[1].path("system.set_relay_state.state").Int())
	})

	t.Run("bulbs switch through a lighting transition", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"err_code":0}}}`),
		}
		d := NewDevice(plugInfo("KL430(US)"), "kasa", transport)

		require.NoError(t, d.PowerOn(context.Background()))

		req := transport.requests[0]
		body := gjson.ParseBytes(req.body)
		transition := body.Get(`smartlife\.iot\.smartbulb\.lightingservice`).Get("transition_light_state")
		require.True(t, transition.Exists())
		assert.Equal(t, int64(1), transition.Get("on_off").Int())
		assert.False(t, transition.Get("brightness").Exists())
	})

	t.Run("toggle flips the observed state", func(t *testing.T) {
		transport := &fakeTransport{}
		transport.respond = func(req fakeRequest) (json.RawMessage, error) {
			if req.path("system.get_sysinfo").Exists() || !req.path("system").Exists() {
				return json.RawMessage(`{"system":{"get_sysinfo":{"relay_state":1}}}`), nil
			}
			return json.RawMessage(`{"system":{"set_relay_state":{"err_code":0}}}`), nil
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		require.NoError(t, d.Toggle(context.Background()))

		last := transport.requests[len(transport.requests)-1]
		assert.Equal(t, int64(0), last.path("system.set_relay_state.state").Int())
	})

	t.Run("state queries fail when the device reports nothing usable", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"system":{"get_sysinfo":{"alias":"weird"}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		_, err := d.IsOn(context.Background())
		assert.Error(t, err)
	})

	t.Run("bulb state is read from the light state", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"system":{"get_sysinfo":{"light_state":{"on_off":1,"mode":"normal"}}}}`),
		}
		d := NewDevice(plugInfo("KL430(US)"), "kasa", transport)

		on, err := d.IsOn(context.Background())
		require.NoError(t, err)
		assert.True(t, on)
	})
}

func TestSetLED(t *testing.T) {
	// The wire field sets whether the LED is off, so it is inverted
	transport := &fakeTransport{
		respond: respondWith(`{"system":{"set_led_off":{"err_code":0}}}`),
	}
	d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

	require.NoError(t, d.SetLED(context.Background(), true))
	assert.Equal(t, int64(0), transport.requests[0].path("system.set_led_off.off").Int())

	require.NoError(t, d.SetLED(context.Background(), false))
	assert.Equal(t, int64(1), transport.requests[1].path("system.set_led_off.off").Int())
}

func TestScheduleOperations(t *testing.T) {
	t.Run("the rule table is fetched and decoded", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"schedule":{"get_rules":{
				"rule_list": [{"id":"AB12","name":"Evening","enable":1,"sact":1,"smin":705,"stime_opt":0}],
				"version": 2, "enable": 1, "err_code": 0}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		rules, err := d.ScheduleRules(context.Background())

		require.NoError(t, err)
		require.NotNil(t, rules)
		require.Len(t, rules.RuleList, 1)

		rule := rules.RuleList[0]
		assert.Equal(t, "AB12", rule.ID)
		assert.True(t, rule.Enabled())
		assert.True(t, rule.TurnsOn())
		assert.Equal(t, StartAtTime, rule.StartType())

		hour, minute := rule.StartClock()
		assert.Equal(t, 11, hour)
		assert.Equal(t, 45, minute)
	})

	t.Run("adding a rule returns the device-assigned id", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"schedule":{"add_rule":{"id":"C0FFEE","err_code":0}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		rule, err := NewRuleBuilder().
			WithAction(true).
			WithEnabled(true).
			WithTimeStart(11, 45).
			WithRepeatOnDays([]int{1, 0, 1, 1, 0, 1, 1}).
			Build()
		require.NoError(t, err)

		id, err := d.AddScheduleRule(context.Background(), rule)

		require.NoError(t, err)
		assert.Equal(t, "C0FFEE", id)
	})

	t.Run("editing requires a rule id", func(t *testing.T) {
		d := NewDevice(plugInfo("HS103(US)"), "kasa", &fakeTransport{})

		err := d.EditScheduleRule(context.Background(), ScheduleRule{Name: "No ID"})
		assert.EqualError(t, err, "rule ID is required for edit")
	})

	t.Run("deleting a rule targets it by id", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"schedule":{"delete_rule":{"err_code":0}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		require.NoError(t, d.DeleteScheduleRule(context.Background(), "C0FFEE"))
		assert.Equal(t, "C0FFEE", transport.requests[0].path("schedule.delete_rule.id").String())
	})
}

func TestDeviceDiagnostics(t *testing.T) {
	t.Run("net info reports the joined network", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"netif":{"get_stainfo":{"ssid":"HomeNet","key_type":3,"rssi":-52,"err_code":0}}}`),
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		info, err := d.NetInfo(context.Background())

		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "HomeNet", info.SSID)
		assert.Equal(t, -52, info.RSSI)
	})

	t.Run("time and timezone decode the clock fields", func(t *testing.T) {
		transport := &fakeTransport{}
		transport.respond = func(req fakeRequest) (json.RawMessage, error) {
			if req.path("time.get_time").Exists() {
				return json.RawMessage(`{"time":{"get_time":{"year":2026,"month":8,"mday":28,"hour":9,"min":30,"sec":5,"err_code":0}}}`), nil
			}
			return json.RawMessage(`{"time":{"get_timezone":{"index":13,"err_code":0}}}`), nil
		}
		d := NewDevice(plugInfo("HS103(US)"), "kasa", transport)

		clock, err := d.Time(context.Background())
		require.NoError(t, err)
		require.NotNil(t, clock)
		assert.Equal(t, 2026, clock.Year)
		assert.Equal(t, 28, clock.Mday)

		tz, err := d.Timezone(context.Background())
		require.NoError(t, err)
		require.NotNil(t, tz)
		assert.Equal(t, 13, tz.Index)
	})
}

func TestLighting(t *testing.T) {
	bulbResponse := respondWith(`{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"err_code":0}}}`)

	transitionOf := func(req fakeRequest) gjson.Result {
		return gjson.ParseBytes(req.body).
			Get(`smartlife\.iot\.smartbulb\.lightingservice`).
			Get("transition_light_state")
	}

	t.Run("brightness turns the bulb on", func(t *testing.T) {
		transport := &fakeTransport{respond: bulbResponse}
		d := NewDevice(plugInfo("KL430(US)"), "kasa", transport)

		require.NoError(t, d.SetBrightness(context.Background(), 40))

		tr := transitionOf(transport.requests[0])
		assert.Equal(t, int64(1), tr.Get("on_off").Int())
		assert.Equal(t, int64(40), tr.Get("brightness").Int())
		assert.False(t, tr.Get("hue").Exists())
	})

	t.Run("color mode zeroes the color temperature", func(t *testing.T) {
		transport := &fakeTransport{respond: bulbResponse}
		d := NewDevice(plugInfo("L530(EU)"), "kasa", transport)

		require.NoError(t, d.SetColor(context.Background(), 120, 80, 60))

		tr := transitionOf(transport.requests[0])
		assert.Equal(t, int64(120), tr.Get("hue").Int())
		assert.Equal(t, int64(80), tr.Get("saturation").Int())
		require.True(t, tr.Get("color_temp").Exists())
		assert.Equal(t, int64(0), tr.Get("color_temp").Int())
	})

	t.Run("white mode sets a color temperature and no hue", func(t *testing.T) {
		transport := &fakeTransport{respond: bulbResponse}
		d := NewDevice(plugInfo("KL430(US)"), "kasa", transport)

		require.NoError(t, d.SetColorTemp(context.Background(), 2700, 100))

		tr := transitionOf(transport.requests[0])
		assert.Equal(t, int64(2700), tr.Get("color_temp").Int())
		assert.False(t, tr.Get("hue").Exists())
	})

	t.Run("the light state query decodes the bulb status", func(t *testing.T) {
		transport := &fakeTransport{
			respond: respondWith(`{"smartlife.iot.smartbulb.lightingservice":{"get_light_state":
				{"on_off":1,"mode":"normal","hue":120,"saturation":80,"color_temp":0,"brightness":60,"err_code":0}}}`),
		}
		d := NewDevice(plugInfo("L530(EU)"), "kasa", transport)

		state, err := d.LightState(context.Background())

		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, 1, state.OnOff)
		assert.Equal(t, 120, state.Hue)
		assert.Equal(t, 60, state.Brightness)
	})
}
