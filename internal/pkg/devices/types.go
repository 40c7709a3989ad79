package devices

import "strings"

/*
 *  Device model dispatch: model strings from the cloud device list
 *  (e.g. "HS300(US)") map onto a closed set of hardware families.
 */

// DeviceType tags the hardware family of a device.
type DeviceType int

const (
	Unknown DeviceType = iota
	HS100
	HS103
	HS105
	HS110
	HS200
	HS300
	HS300Child
	KP115
	KP125
	KP200
	KP200Child
	KP303
	KP303Child
	KP400
	KP400Child
	EP40
	EP40Child
	KL420L5
	KL430
	P100
	P110
	L530
)

var deviceTypeNames = []string{
	"Unknown",
	"HS100",
	"HS103",
	"HS105",
	"HS110",
	"HS200",
	"HS300",
	"HS300Child",
	"KP115",
	"KP125",
	"KP200",
	"KP200Child",
	"KP303",
	"KP303Child",
	"KP400",
	"KP400Child",
	"EP40",
	"EP40Child",
	"KL420L5",
	"KL430",
	"P100",
	"P110",
	"L530",
}

func (t DeviceType) String() string {
	if int(t) >= len(deviceTypeNames) {
		return "Unknown"
	}
	return deviceTypeNames[t]
}

// Capabilities records what a device family can do.  Behaviour
// dispatches on this record rather than on a type hierarchy.
type Capabilities struct {
	HasChildren bool
	HasEmeter   bool
	IsDimmable  bool
	IsColor     bool
}

// modelFamily is one row of the static dispatch table.
type modelFamily struct {
	prefix     string
	deviceType DeviceType
	caps       Capabilities
	childType  DeviceType
	childCaps  Capabilities
}

// The dispatch table.  Read-only after init; matching is by longest
// prefix of the cloud model string, with Unknown as the fallback.
var modelFamilies = []modelFamily{
	{prefix: "HS100", deviceType: HS100},
	{prefix: "HS103", deviceType: HS103},
	{prefix: "HS105", deviceType: HS105},
	{prefix: "HS110", deviceType: HS110, caps: Capabilities{HasEmeter: true}},
	{prefix: "HS200", deviceType: HS200},
	{prefix: "HS300", deviceType: HS300, caps: Capabilities{HasChildren: true},
		childType: HS300Child, childCaps: Capabilities{HasEmeter: true}},
	{prefix: "KP115", deviceType: KP115, caps: Capabilities{HasEmeter: true}},
	{prefix: "KP125", deviceType: KP125, caps: Capabilities{HasEmeter: true}},
	{prefix: "KP200", deviceType: KP200, caps: Capabilities{HasChildren: true},
		childType: KP200Child},
	{prefix: "KP303", deviceType: KP303, caps: Capabilities{HasChildren: true},
		childType: KP303Child},
	{prefix: "KP400", deviceType: KP400, caps: Capabilities{HasChildren: true},
		childType: KP400Child},
	{prefix: "EP40", deviceType: EP40, caps: Capabilities{HasChildren: true},
		childType: EP40Child},
	{prefix: "KL420L5", deviceType: KL420L5, caps: Capabilities{IsDimmable: true, IsColor: true}},
	{prefix: "KL430", deviceType: KL430, caps: Capabilities{IsDimmable: true, IsColor: true}},
	{prefix: "P100", deviceType: P100},
	{prefix: "P110", deviceType: P110, caps: Capabilities{HasEmeter: true}},
	{prefix: "L530", deviceType: L530, caps: Capabilities{IsDimmable: true, IsColor: true}},
}

// familyForModel resolves a cloud model string to its family by longest
// prefix match.
func familyForModel(model string) modelFamily {
	best := modelFamily{deviceType: Unknown}
	bestLen := 0

	for _, f := range modelFamilies {
		if strings.HasPrefix(model, f.prefix) && len(f.prefix) > bestLen {
			best = f
			bestLen = len(f.prefix)
		}
	}

	return best
}
