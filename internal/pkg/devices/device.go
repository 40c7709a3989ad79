package devices

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/jake-scott/kasa-cloud/internal/pkg/cloudapi"
)

const lightingService = "smartlife.iot.smartbulb.lightingservice"

// Transport relays one passthrough command to a device via the cloud.
// Satisfied by *cloudapi.DeviceClient.
type Transport interface {
	Passthrough(ctx context.Context, deviceID string, requestData interface{}) (json.RawMessage, error)
}

// Device is one controllable endpoint: either a physical unit or one
// outlet of a multi-outlet unit.  Devices are value-like and hold no
// telemetry state; every query round-trips through the cloud relay.
//
// A device representing an outlet carries the parent's DeviceID plus
// its own ChildID; a parent never carries a ChildID.
type Device struct {
	Info       cloudapi.DeviceInfo
	DeviceID   string
	ChildID    string
	Type       DeviceType
	Caps       Capabilities
	CloudBrand string

	alias     string
	childType DeviceType
	childCaps Capabilities
	transport Transport
}

// NewDevice constructs the device representation for one raw cloud
// descriptor, dispatched on the descriptor's model string.
func NewDevice(info cloudapi.DeviceInfo, brand string, transport Transport) *Device {
	family := familyForModel(info.DeviceModel)

	return &Device{
		Info:       info,
		DeviceID:   info.DeviceID,
		Type:       family.deviceType,
		Caps:       family.caps,
		CloudBrand: brand,
		alias:      info.Alias,
		childType:  family.childType,
		childCaps:  family.childCaps,
		transport:  transport,
	}
}

// Alias returns the user-assigned device name.
func (d *Device) Alias() string {
	return d.alias
}

// HasChildren reports whether this device is a multi-outlet parent.
func (d *Device) HasChildren() bool {
	return d.Caps.HasChildren
}

// HasEmeter reports whether this device meters power.
func (d *Device) HasEmeter() bool {
	return d.Caps.HasEmeter
}

// passthrough is the single request primitive every operation reuses:
// {outer: {inner: payload}}, with child addressing injected when this
// Device is an outlet, and the shared parent response demultiplexed
// back down to this outlet's entry.
//
// A nil result with a nil error means the device was unreachable or
// the command unsupported; callers surface that as missing data.
func (d *Device) passthrough(ctx context.Context, outer, inner string, payload interface{}) (json.RawMessage, error) {
	request := map[string]interface{}{
		outer: map[string]interface{}{
			inner: payload,
		},
	}
	if d.ChildID != "" {
		request["context"] = map[string]interface{}{
			"child_ids": []string{d.ChildID},
		}
	}

	response, err := d.transport.Passthrough(ctx, d.DeviceID, request)
	if err != nil || response == nil {
		return nil, err
	}

	var outerMap map[string]json.RawMessage
	if err := json.Unmarshal(response, &outerMap); err != nil {
		return nil, errors.Wrap(err, "decoding device response")
	}

	var innerMap map[string]json.RawMessage
	if err := json.Unmarshal(outerMap[outer], &innerMap); err != nil {
		return nil, nil
	}

	sub := innerMap[inner]
	if d.ChildID == "" {
		return sub, nil
	}

	// One physical unit answers for all its outlets; pick ours out of
	// the shared children list when present
	children := gjson.GetBytes(sub, "children")
	if !children.Exists() {
		return sub, nil
	}

	for _, child := range children.Array() {
		if child.Get("id").String() == d.ChildID {
			return json.RawMessage(child.Raw), nil
		}
	}

	return sub, nil
}

// RawSysInfo returns the unparsed sysinfo blob (child-scoped for
// outlet devices).
func (d *Device) RawSysInfo(ctx context.Context) (json.RawMessage, error) {
	return d.passthrough(ctx, "system", "get_sysinfo", nil)
}

// SysInfo returns the typed sysinfo projection, or nil if the device
// did not answer.
func (d *Device) SysInfo(ctx context.Context) (*SysInfo, error) {
	raw, err := d.RawSysInfo(ctx)
	if err != nil {
		return nil, err
	}
	return parseSysInfo(raw)
}

// Children queries a multi-outlet parent for its outlets and returns
// them as independent child devices.  Non-parents return nothing.
func (d *Device) Children(ctx context.Context) ([]*Device, error) {
	if !d.Caps.HasChildren {
		return nil, nil
	}

	info, err := d.SysInfo(ctx)
	if err != nil || info == nil {
		return nil, err
	}

	children := make([]*Device, 0, len(info.Children))
	for _, childInfo := range info.Children {
		children = append(children, &Device{
			Info:       d.Info,
			DeviceID:   d.DeviceID,
			ChildID:    childInfo.ID,
			Type:       d.childType,
			Caps:       d.childCaps,
			CloudBrand: d.CloudBrand,
			alias:      childInfo.Alias,
			transport:  d.transport,
		})
	}

	return children, nil
}

// PowerOn turns the device on.  Bulb families power on through a
// lighting transition rather than the relay.
func (d *Device) PowerOn(ctx context.Context) error {
	if d.Caps.IsDimmable || d.Caps.IsColor {
		return d.SetLightState(ctx, LightTransition{OnOff: intp(1)})
	}

	_, err := d.passthrough(ctx, "system", "set_relay_state", map[string]int{"state": 1})
	return err
}

// PowerOff turns the device off.
func (d *Device) PowerOff(ctx context.Context) error {
	if d.Caps.IsDimmable || d.Caps.IsColor {
		return d.SetLightState(ctx, LightTransition{OnOff: intp(0)})
	}

	_, err := d.passthrough(ctx, "system", "set_relay_state", map[string]int{"state": 0})
	return err
}

// Toggle flips the device's power state.
func (d *Device) Toggle(ctx context.Context) error {
	on, err := d.IsOn(ctx)
	if err != nil {
		return err
	}

	if on {
		return d.PowerOff(ctx)
	}
	return d.PowerOn(ctx)
}

// IsOn queries the device's observable power state.
func (d *Device) IsOn(ctx context.Context) (bool, error) {
	raw, err := d.RawSysInfo(ctx)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, errors.New("device did not report its state")
	}

	on, ok := relayOn(raw, d.ChildID != "")
	if !ok {
		return false, errors.New("device did not report its state")
	}
	return on, nil
}

// IsOff is the complement of IsOn.
func (d *Device) IsOff(ctx context.Context) (bool, error) {
	on, err := d.IsOn(ctx)
	return !on, err
}

// SetLED switches the device's status LED.  The wire field is
// inverted: it sets whether the LED is *off*.
func (d *Device) SetLED(ctx context.Context, on bool) error {
	_, err := d.passthrough(ctx, "system", "set_led_off", map[string]int{"off": boolInt(!on)})
	return err
}

// ScheduleRules fetches the device's schedule rule table, or nil if
// the device did not answer.
func (d *Device) ScheduleRules(ctx context.Context) (*ScheduleRules, error) {
	raw, err := d.passthrough(ctx, "schedule", "get_rules", map[string]interface{}{})
	if err != nil || raw == nil {
		return nil, err
	}

	var rules ScheduleRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, errors.Wrap(err, "decoding schedule rules")
	}
	return &rules, nil
}

// AddScheduleRule creates a rule on the device and returns the
// device-assigned rule ID.
func (d *Device) AddScheduleRule(ctx context.Context, rule ScheduleRule) (string, error) {
	raw, err := d.passthrough(ctx, "schedule", "add_rule", rule)
	if err != nil || raw == nil {
		return "", err
	}
	return gjson.GetBytes(raw, "id").String(), nil
}

// EditScheduleRule replaces an existing rule; the rule must carry its
// ID.
func (d *Device) EditScheduleRule(ctx context.Context, rule ScheduleRule) error {
	if rule.ID == "" {
		return errors.New("rule ID is required for edit")
	}

	_, err := d.passthrough(ctx, "schedule", "edit_rule", rule)
	return err
}

// DeleteScheduleRule removes one rule by ID.
func (d *Device) DeleteScheduleRule(ctx context.Context, ruleID string) error {
	_, err := d.passthrough(ctx, "schedule", "delete_rule", map[string]string{"id": ruleID})
	return err
}

// DeleteAllScheduleRules clears the device's rule table.
func (d *Device) DeleteAllScheduleRules(ctx context.Context) error {
	_, err := d.passthrough(ctx, "schedule", "delete_all_rules", map[string]interface{}{})
	return err
}

// NetInfo queries the WiFi network the device has joined, or nil if
// the device did not answer.
func (d *Device) NetInfo(ctx context.Context) (*NetInfo, error) {
	raw, err := d.passthrough(ctx, "netif", "get_stainfo", map[string]interface{}{})
	if err != nil || raw == nil {
		return nil, err
	}

	var info NetInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, errors.Wrap(err, "decoding net info")
	}
	return &info, nil
}

// Time queries the device's clock, or nil if the device did not
// answer.
func (d *Device) Time(ctx context.Context) (*DeviceTime, error) {
	raw, err := d.passthrough(ctx, "time", "get_time", map[string]interface{}{})
	if err != nil || raw == nil {
		return nil, err
	}

	var t DeviceTime
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrap(err, "decoding device time")
	}
	return &t, nil
}

// Timezone queries the device's timezone setting, or nil if the
// device did not answer.
func (d *Device) Timezone(ctx context.Context) (*DeviceTimezone, error) {
	raw, err := d.passthrough(ctx, "time", "get_timezone", map[string]interface{}{})
	if err != nil || raw == nil {
		return nil, err
	}

	var tz DeviceTimezone
	if err := json.Unmarshal(raw, &tz); err != nil {
		return nil, errors.Wrap(err, "decoding device timezone")
	}
	return &tz, nil
}

// RealtimeUsage queries the metering subsystem's instantaneous
// snapshot, or nil for devices that did not answer.
func (d *Device) RealtimeUsage(ctx context.Context) (*RealtimeUsage, error) {
	raw, err := d.passthrough(ctx, "emeter", "get_realtime", nil)
	if err != nil {
		return nil, err
	}
	return parseRealtimeUsage(raw), nil
}

// DayUsage queries per-day energy for one month.
func (d *Device) DayUsage(ctx context.Context, year, month int) ([]DayUsage, error) {
	raw, err := d.passthrough(ctx, "emeter", "get_daystat",
		map[string]int{"year": year, "month": month})
	if err != nil {
		return nil, err
	}
	return parseDayUsage(raw), nil
}

// MonthUsage queries per-month energy for one year.
func (d *Device) MonthUsage(ctx context.Context, year int) ([]MonthUsage, error) {
	raw, err := d.passthrough(ctx, "emeter", "get_monthstat", map[string]int{"year": year})
	if err != nil {
		return nil, err
	}
	return parseMonthUsage(raw), nil
}

// LightState queries a bulb's lighting status, or nil if the device
// did not answer.
func (d *Device) LightState(ctx context.Context) (*LightState, error) {
	raw, err := d.passthrough(ctx, lightingService, "get_light_state", map[string]interface{}{})
	if err != nil || raw == nil {
		return nil, err
	}

	var state LightState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(err, "decoding light state")
	}
	return &state, nil
}

// LightTransition is a sparse target state for a lighting transition;
// only set fields are sent to the bulb.
type LightTransition struct {
	OnOff            *int `json:"on_off,omitempty"`
	Brightness       *int `json:"brightness,omitempty"`
	Hue              *int `json:"hue,omitempty"`
	Saturation       *int `json:"saturation,omitempty"`
	ColorTemp        *int `json:"color_temp,omitempty"`
	TransitionPeriod *int `json:"transition_period,omitempty"`
}

// SetLightState issues a lighting transition towards the given target
// state.
func (d *Device) SetLightState(ctx context.Context, transition LightTransition) error {
	_, err := d.passthrough(ctx, lightingService, "transition_light_state", transition)
	return err
}

// SetBrightness turns a bulb on at the given brightness (0-100).
func (d *Device) SetBrightness(ctx context.Context, brightness int) error {
	return d.SetLightState(ctx, LightTransition{OnOff: intp(1), Brightness: intp(brightness)})
}

// SetColor turns a bulb on in color mode.  Color temperature is forced
// to zero, which is how the firmware distinguishes color from white.
func (d *Device) SetColor(ctx context.Context, hue, saturation, brightness int) error {
	return d.SetLightState(ctx, LightTransition{
		OnOff:      intp(1),
		Hue:        intp(hue),
		Saturation: intp(saturation),
		ColorTemp:  intp(0),
		Brightness: intp(brightness),
	})
}

// SetColorTemp turns a bulb on in white mode at the given color
// temperature.
func (d *Device) SetColorTemp(ctx context.Context, colorTemp, brightness int) error {
	return d.SetLightState(ctx, LightTransition{
		OnOff:      intp(1),
		ColorTemp:  intp(colorTemp),
		Brightness: intp(brightness),
	})
}
