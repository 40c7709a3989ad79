package devices

import "github.com/pkg/errors"

// StartOption discriminates how a schedule rule's trigger time is
// interpreted.
type StartOption int

const (
	StartAtTime StartOption = iota
	StartAtSunrise
	StartAtSunset
)

// ScheduleRule is one timer entry on a device, in the wire shape the
// cloud expects.  Optional fields are pointers so that absent and zero
// are distinguishable; only set fields are serialized.
type ScheduleRule struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Enable   *int   `json:"enable,omitempty"`
	Wday     []int  `json:"wday,omitempty"`
	StimeOpt *int   `json:"stime_opt,omitempty"`
	Soffset  *int   `json:"soffset,omitempty"`
	Smin     *int   `json:"smin,omitempty"`
	Sact     *int   `json:"sact,omitempty"`
	EtimeOpt *int   `json:"etime_opt,omitempty"`
	Eoffset  *int   `json:"eoffset,omitempty"`
	Emin     *int   `json:"emin,omitempty"`
	Eact     *int   `json:"eact,omitempty"`
	Repeat   *int   `json:"repeat,omitempty"`

	// Only meaningful when Repeat is 0
	Year  *int `json:"year,omitempty"`
	Month *int `json:"month,omitempty"`
	Day   *int `json:"day,omitempty"`
}

// Enabled reports whether the rule is active.
func (r *ScheduleRule) Enabled() bool {
	return r.Enable != nil && *r.Enable == 1
}

// TurnsOn reports whether the rule's action powers the device on.
func (r *ScheduleRule) TurnsOn() bool {
	return r.Sact != nil && *r.Sact == 1
}

// Repeats reports whether the rule recurs on its weekday selector
// rather than firing once on an explicit date.
func (r *ScheduleRule) Repeats() bool {
	return r.Repeat != nil && *r.Repeat == 1
}

// StartType returns the trigger discriminator; rules without one
// default to a time-of-day start.
func (r *ScheduleRule) StartType() StartOption {
	if r.StimeOpt == nil {
		return StartAtTime
	}
	return StartOption(*r.StimeOpt)
}

// StartClock returns the trigger time of day derived from the
// minutes-since-midnight field.
func (r *ScheduleRule) StartClock() (hour, minute int) {
	if r.Smin == nil {
		return 0, 0
	}
	return *r.Smin / 60, *r.Smin % 60
}

// ScheduleRules is a device's full rule table.
type ScheduleRules struct {
	RuleList []ScheduleRule `json:"rule_list"`
	Version  int            `json:"version"`
	Enable   int            `json:"enable"`
	ErrCode  int            `json:"err_code"`
}

// RuleBuilder accumulates schedule rule fields and validates presence
// on Build.  A partially specified rule is never emitted.
type RuleBuilder struct {
	rule ScheduleRule
}

// NewRuleBuilder starts a builder with the defaults the vendor app
// uses: a generic name and no end-of-period action.
func NewRuleBuilder() *RuleBuilder {
	b := &RuleBuilder{}
	b.rule.Name = "Schedule Rule"
	// The app does not expose end-time fields; leave them disabled
	b.rule.EtimeOpt = intp(-1)
	b.rule.Emin = intp(0)
	b.rule.Eact = intp(-1)
	return b
}

// EditRule starts a builder from an existing rule.
func EditRule(rule ScheduleRule) *RuleBuilder {
	return &RuleBuilder{rule: rule}
}

// WithName sets the rule name.
func (b *RuleBuilder) WithName(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

// WithAction sets whether the rule turns the device on or off.
func (b *RuleBuilder) WithAction(turnOn bool) *RuleBuilder {
	b.rule.Sact = intp(boolInt(turnOn))
	return b
}

// WithEnabled sets whether the rule is active.
func (b *RuleBuilder) WithEnabled(enabled bool) *RuleBuilder {
	b.rule.Enable = intp(boolInt(enabled))
	return b
}

// WithTimeStart triggers the rule at a time of day.  Overrides other
// start triggers.
func (b *RuleBuilder) WithTimeStart(hour, minute int) *RuleBuilder {
	b.rule.StimeOpt = intp(int(StartAtTime))
	b.rule.Smin = intp(hour*60 + minute)
	return b
}

// WithSunriseStart triggers the rule at sunrise.
func (b *RuleBuilder) WithSunriseStart() *RuleBuilder {
	b.rule.StimeOpt = intp(int(StartAtSunrise))
	return b
}

// WithSunsetStart triggers the rule at sunset.
func (b *RuleBuilder) WithSunsetStart() *RuleBuilder {
	b.rule.StimeOpt = intp(int(StartAtSunset))
	return b
}

// WithRepeatOnDays makes the rule recur on the selected days.  days is
// a 7-element 0/1 selector starting at Sunday.  Overrides a one-shot
// date.
func (b *RuleBuilder) WithRepeatOnDays(days []int) *RuleBuilder {
	b.rule.Repeat = intp(1)
	b.rule.Wday = days
	return b
}

// WithOneRun makes the rule fire once on an explicit date.  Overrides
// a repeat selector.
func (b *RuleBuilder) WithOneRun(year, month, day int) *RuleBuilder {
	b.rule.Repeat = intp(0)
	b.rule.Wday = []int{0, 0, 0, 0, 0, 0, 0}
	b.rule.Year = intp(year)
	b.rule.Month = intp(month)
	b.rule.Day = intp(day)
	return b
}

// Build validates that every required field has been supplied and
// returns the completed rule.
func (b *RuleBuilder) Build() (ScheduleRule, error) {
	switch {
	case b.rule.Name == "":
		return ScheduleRule{}, errors.New("rule name is required")
	case b.rule.Sact == nil:
		return ScheduleRule{}, errors.New("rule action (sact) is required")
	case b.rule.Enable == nil:
		return ScheduleRule{}, errors.New("rule enable status is required")
	case b.rule.Repeat == nil:
		return ScheduleRule{}, errors.New("rule repeat status is required")
	case b.rule.Wday == nil:
		return ScheduleRule{}, errors.New("rule repeat days (wday) are required")
	}

	return b.rule, nil
}

func intp(v int) *int {
	return &v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
