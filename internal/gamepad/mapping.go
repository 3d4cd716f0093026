package gamepad

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/soar/padrelay/internal/controller"
)

// ButtonBinding ties a physical button index to a canonical button name.
type ButtonBinding struct {
	Index  int
	Button string
}

// ButtonMap is an immutable physical index -> canonical button mapping.
// Bindings are kept in ascending physical index order; that order is the
// order in which a full button re-sync is sent.
type ButtonMap struct {
	bindings []ButtonBinding
	byIndex  map[int]string
}

// NewButtonMap builds a ButtonMap from a layout of canonical button name ->
// physical index, the form button layouts are configured in.
func NewButtonMap(layout map[string]int) (*ButtonMap, error) {
	m := &ButtonMap{byIndex: make(map[int]string, len(layout))}
	for _, name := range slices.Sorted(maps.Keys(layout)) {
		index := layout[name]
		if !controller.IsButton(name) {
			return nil, fmt.Errorf("%w: %q is not a controller button", ErrInvalidMapping, name)
		}
		if index < 0 {
			return nil, fmt.Errorf("%w: button %q has negative index %d", ErrInvalidMapping, name, index)
		}
		if other, dup := m.byIndex[index]; dup {
			return nil, fmt.Errorf("%w: physical button %d mapped to both %q and %q", ErrInvalidMapping, index, other, name)
		}
		m.byIndex[index] = name
		m.bindings = append(m.bindings, ButtonBinding{Index: index, Button: name})
	}
	slices.SortFunc(m.bindings, func(a, b ButtonBinding) int { return cmp.Compare(a.Index, b.Index) })
	return m, nil
}

// Lookup returns the canonical name bound to a physical index.
func (m *ButtonMap) Lookup(index int) (string, bool) {
	name, ok := m.byIndex[index]
	return name, ok
}

// Bindings returns all bindings in ascending physical index order.
func (m *ButtonMap) Bindings() []ButtonBinding {
	return slices.Clone(m.bindings)
}

func (m *ButtonMap) Len() int {
	return len(m.bindings)
}

// Filter returns a map holding only the bindings keep accepts.
func (m *ButtonMap) Filter(keep func(button string) bool) *ButtonMap {
	out := &ButtonMap{byIndex: make(map[int]string)}
	for _, b := range m.bindings {
		if keep(b.Button) {
			out.bindings = append(out.bindings, b)
			out.byIndex[b.Index] = b.Button
		}
	}
	return out
}

// TriggerLayout converts an analog axis into a button press once the axis
// value exceeds Threshold.
type TriggerLayout struct {
	Axis      int     `mapstructure:"axis"`
	Threshold float64 `mapstructure:"threshold"`
}

// AxisLayout is the configured form of an AxisMap. Sticks hold
// [horizontal, vertical] axis index pairs.
type AxisLayout struct {
	Sticks   map[string][]int         `mapstructure:"sticks"`
	Triggers map[string]TriggerLayout `mapstructure:"triggers"`
}

type StickBinding struct {
	Stick      string
	Horizontal int
	Vertical   int
}

type TriggerBinding struct {
	Button    string
	Axis      int
	Threshold float64
}

// AxisMap is an immutable set of stick and trigger bindings, each sorted by
// name.
type AxisMap struct {
	sticks   []StickBinding
	triggers []TriggerBinding
}

func NewAxisMap(layout AxisLayout) (*AxisMap, error) {
	m := &AxisMap{}
	for _, name := range slices.Sorted(maps.Keys(layout.Sticks)) {
		axes := layout.Sticks[name]
		if !controller.IsStick(name) {
			return nil, fmt.Errorf("%w: %q is not a controller stick", ErrInvalidMapping, name)
		}
		if len(axes) != 2 {
			return nil, fmt.Errorf("%w: stick %q needs [horizontal, vertical] axes, got %v", ErrInvalidMapping, name, axes)
		}
		if axes[0] < 0 || axes[1] < 0 {
			return nil, fmt.Errorf("%w: stick %q has a negative axis index", ErrInvalidMapping, name)
		}
		m.sticks = append(m.sticks, StickBinding{Stick: name, Horizontal: axes[0], Vertical: axes[1]})
	}
	for _, name := range slices.Sorted(maps.Keys(layout.Triggers)) {
		t := layout.Triggers[name]
		if !controller.IsButton(name) {
			return nil, fmt.Errorf("%w: trigger %q is not a controller button", ErrInvalidMapping, name)
		}
		if t.Axis < 0 {
			return nil, fmt.Errorf("%w: trigger %q has negative axis index %d", ErrInvalidMapping, name, t.Axis)
		}
		if t.Threshold < -1 || t.Threshold > 1 || math.IsNaN(t.Threshold) {
			return nil, fmt.Errorf("%w: trigger %q threshold %v outside [-1, 1]", ErrInvalidMapping, name, t.Threshold)
		}
		m.triggers = append(m.triggers, TriggerBinding{Button: name, Axis: t.Axis, Threshold: t.Threshold})
	}
	return m, nil
}

func (m *AxisMap) Sticks() []StickBinding {
	return slices.Clone(m.sticks)
}

func (m *AxisMap) Triggers() []TriggerBinding {
	return slices.Clone(m.triggers)
}

// Filter returns a map holding only the sticks and triggers the predicates
// accept.
func (m *AxisMap) Filter(keepStick, keepTrigger func(name string) bool) *AxisMap {
	out := &AxisMap{}
	for _, s := range m.sticks {
		if keepStick(s.Stick) {
			out.sticks = append(out.sticks, s)
		}
	}
	for _, t := range m.triggers {
		if keepTrigger(t.Button) {
			out.triggers = append(out.triggers, t)
		}
	}
	return out
}

// NormalizeAxis converts a raw axis value (-32768..32767) to -1.0..1.0.
func NormalizeAxis(raw int16) float64 {
	v := float64(raw) / math.MaxInt16
	if v < -1.0 {
		v = -1.0
	}
	return v
}

// ApplyDeadzone returns 0 if the value is within the deadzone threshold.
func ApplyDeadzone(v float64, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
}

// Profile is the default layout for a family of devices. Button layouts map
// by position: the bottom face button is the Switch "b", the right one "a".
type Profile struct {
	Name    string
	Buttons map[string]int
	Axes    AxisLayout
}

// The layout the relay has always shipped with.
var genericProfile = &Profile{
	Name: "generic",
	Buttons: map[string]int{
		controller.ButtonA:      1,
		controller.ButtonB:      0,
		controller.ButtonX:      3,
		controller.ButtonY:      2,
		controller.ButtonMinus:  6,
		controller.ButtonPlus:   7,
		controller.ButtonHome:   8,
		controller.ButtonL:      4,
		controller.ButtonR:      5,
		controller.ButtonLStick: 9,
		controller.ButtonRStick: 10,
	},
	Axes: AxisLayout{
		Sticks: map[string][]int{
			controller.StickLeft:  {0, 1},
			controller.StickRight: {3, 4},
		},
		Triggers: map[string]TriggerLayout{
			controller.ButtonZL: {Axis: 2, Threshold: -0.5},
			controller.ButtonZR: {Axis: 5, Threshold: -0.5},
		},
	},
}

var xboxProfile = &Profile{
	Name: "xbox",
	Buttons: map[string]int{
		controller.ButtonB:      0,
		controller.ButtonA:      1,
		controller.ButtonY:      2,
		controller.ButtonX:      3,
		controller.ButtonL:      4,
		controller.ButtonR:      5,
		controller.ButtonMinus:  6,
		controller.ButtonPlus:   7,
		controller.ButtonLStick: 8,
		controller.ButtonRStick: 9,
		controller.ButtonHome:   10,
	},
	Axes: AxisLayout{
		Sticks: map[string][]int{
			controller.StickLeft:  {0, 1},
			controller.StickRight: {2, 3},
		},
		Triggers: map[string]TriggerLayout{
			controller.ButtonZL: {Axis: 4, Threshold: -0.5},
			controller.ButtonZR: {Axis: 5, Threshold: -0.5},
		},
	},
}

var playstationProfile = &Profile{
	Name: "playstation",
	Buttons: map[string]int{
		controller.ButtonB:      0, // Cross
		controller.ButtonA:      1, // Circle
		controller.ButtonY:      2, // Square
		controller.ButtonX:      3, // Triangle
		controller.ButtonMinus:  4, // Share / Create
		controller.ButtonHome:   5, // PS button
		controller.ButtonPlus:   6, // Options
		controller.ButtonLStick: 7,
		controller.ButtonRStick: 8,
		controller.ButtonL:      9,
		controller.ButtonR:      10,
	},
	Axes: AxisLayout{
		Sticks: map[string][]int{
			controller.StickLeft:  {0, 1},
			controller.StickRight: {2, 3},
		},
		Triggers: map[string]TriggerLayout{
			controller.ButtonZL: {Axis: 4, Threshold: -0.5},
			controller.ButtonZR: {Axis: 5, Threshold: -0.5},
		},
	},
}

var switchProProfile = &Profile{
	Name: "switch_pro",
	Buttons: map[string]int{
		controller.ButtonB:      0,
		controller.ButtonA:      1,
		controller.ButtonY:      2,
		controller.ButtonX:      3,
		controller.ButtonL:      4,
		controller.ButtonR:      5,
		controller.ButtonMinus:  6,
		controller.ButtonPlus:   7,
		controller.ButtonLStick: 8,
		controller.ButtonRStick: 9,
		controller.ButtonHome:   10,
	},
	Axes: AxisLayout{
		Sticks: map[string][]int{
			controller.StickLeft:  {0, 1},
			controller.StickRight: {2, 3},
		},
	},
}

// Known vendor/product IDs.
type deviceKey struct {
	VendorID  uint16
	ProductID uint16
}

var knownDevices = map[deviceKey]*Profile{
	// Microsoft Xbox controllers
	{0x045E, 0x028E}: xboxProfile, // Xbox 360
	{0x045E, 0x02FF}: xboxProfile, // Xbox One
	{0x045E, 0x0B12}: xboxProfile, // Xbox Series X|S
	{0x045E, 0x0B13}: xboxProfile, // Xbox Series X|S (wireless)
	// Sony PlayStation controllers
	{0x054C, 0x0CE6}: playstationProfile, // DualSense
	{0x054C, 0x09CC}: playstationProfile, // DualShock 4 v2
	{0x054C, 0x05C4}: playstationProfile, // DualShock 4 v1
	// Nintendo Switch Pro Controller
	{0x057E, 0x2009}: switchProProfile,
}

// ProfileFor returns the default layout for a device identified by
// vendor/product ID, falling back to the generic layout.
func ProfileFor(vendorID, productID uint16) *Profile {
	if p, ok := knownDevices[deviceKey{VendorID: vendorID, ProductID: productID}]; ok {
		return p
	}
	return genericProfile
}
