package devices

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// SysInfo is the typed projection of a device's self-reported status
// blob.  It is a superset of the plug, power-strip and bulb shapes;
// fields a given firmware does not report are left at their zero
// value.  When a child-addressed device is queried the blob is the
// demultiplexed child entry, which uses the ID/State/OnTime fields.
type SysInfo struct {
	ErrCode    int     `json:"err_code"`
	SwVer      string  `json:"sw_ver"`
	HwVer      string  `json:"hw_ver"`
	Type       string  `json:"type"`
	Model      string  `json:"model"`
	Mac        string  `json:"mac"`
	DeviceID   string  `json:"deviceId"`
	HwID       string  `json:"hwId"`
	FwID       string  `json:"fwId"`
	OemID      string  `json:"oemId"`
	Alias      string  `json:"alias"`
	DevName    string  `json:"dev_name"`
	IconHash   string  `json:"icon_hash"`
	RelayState int     `json:"relay_state"`
	OnTime     int     `json:"on_time"`
	ActiveMode string  `json:"active_mode"`
	Feature    string  `json:"feature"`
	Updating   int     `json:"updating"`
	RSSI       int     `json:"rssi"`
	LedOff     int     `json:"led_off"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	LatitudeI  int     `json:"latitude_i"`
	LongitudeI int     `json:"longitude_i"`
	MicType    string  `json:"mic_type"`
	Status     string  `json:"status"`

	// Bulbs
	IsDimmable          int         `json:"is_dimmable"`
	IsColor             int         `json:"is_color"`
	IsVariableColorTemp int         `json:"is_variable_color_temp"`
	LightState          *LightState `json:"light_state"`

	// Multi-outlet parents
	ChildNum int            `json:"child_num"`
	Children []ChildSysInfo `json:"children"`

	// Child entries (demultiplexed from a parent response)
	ID         string      `json:"id"`
	State      int         `json:"state"`
	NextAction *NextAction `json:"next_action"`
}

// LightState is a bulb's lighting status.
type LightState struct {
	OnOff            int    `json:"on_off"`
	Mode             string `json:"mode"`
	Hue              int    `json:"hue"`
	Saturation       int    `json:"saturation"`
	ColorTemp        int    `json:"color_temp"`
	Brightness       int    `json:"brightness"`
	TransitionPeriod int    `json:"transition_period,omitempty"`
}

// ChildSysInfo is one outlet's entry in a multi-outlet parent's status.
type ChildSysInfo struct {
	ID         string      `json:"id"`
	State      int         `json:"state"`
	Alias      string      `json:"alias"`
	OnTime     int         `json:"on_time"`
	NextAction *NextAction `json:"next_action"`
}

// NextAction describes the next scheduled action on an outlet.
type NextAction struct {
	Type    int `json:"type"`
	SchdSec int `json:"schd_sec"`
	Action  int `json:"action"`
}

// NetInfo is a device's report of the WiFi network it has joined.
type NetInfo struct {
	SSID    string `json:"ssid"`
	KeyType int    `json:"key_type"`
	RSSI    int    `json:"rssi"`
	ErrCode int    `json:"err_code"`
}

// DeviceTime is a device's clock reading.
type DeviceTime struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	Mday    int `json:"mday"`
	Hour    int `json:"hour"`
	Min     int `json:"min"`
	Sec     int `json:"sec"`
	ErrCode int `json:"err_code"`
}

// DeviceTimezone is a device's timezone setting (an index into the
// firmware's zone table).
type DeviceTimezone struct {
	Index   int `json:"index"`
	ErrCode int `json:"err_code"`
}

// parseSysInfo decodes a raw sysinfo blob.
func parseSysInfo(raw json.RawMessage) (*SysInfo, error) {
	if raw == nil {
		return nil, nil
	}

	var info SysInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// relayOn reads the observable on/off truth out of a raw sysinfo blob,
// normalizing the three shapes firmware report it in: "state" on child
// entries, "relay_state" on plugs, and "light_state.on_off" on bulbs.
func relayOn(raw json.RawMessage, child bool) (bool, bool) {
	if child {
		if v := gjson.GetBytes(raw, "state"); v.Exists() {
			return v.Int() == 1, true
		}
		return false, false
	}

	if v := gjson.GetBytes(raw, "relay_state"); v.Exists() {
		return v.Int() == 1, true
	}
	if v := gjson.GetBytes(raw, "light_state.on_off"); v.Exists() {
		return v.Int() == 1, true
	}

	return false, false
}
