package gamepad

import (
	"math"

	"github.com/soar/padrelay/internal/controller"
)

// ButtonUpdate is a single canonical button state change.
type ButtonUpdate struct {
	Button  string
	Pressed bool
}

// TranslateButton returns the canonical name for a physical button index.
func TranslateButton(index int, m *ButtonMap) (string, error) {
	name, ok := m.Lookup(index)
	if !ok {
		return "", &UnmappedButtonError{Index: index}
	}
	return name, nil
}

// TranslateHat decomposes a hat position into button updates, horizontal
// axis first. Both axes are always re-asserted, so a centred axis releases
// both of its directions while a deflected one only presses its direction.
func TranslateHat(h Hat) []ButtonUpdate {
	out := make([]ButtonUpdate, 0, 4)

	switch {
	case h.H == 0:
		out = append(out,
			ButtonUpdate{controller.ButtonLeft, false},
			ButtonUpdate{controller.ButtonRight, false})
	case h.H > 0:
		out = append(out, ButtonUpdate{controller.ButtonRight, true})
	default:
		out = append(out, ButtonUpdate{controller.ButtonLeft, true})
	}

	switch {
	case h.V == 0:
		out = append(out,
			ButtonUpdate{controller.ButtonUp, false},
			ButtonUpdate{controller.ButtonDown, false})
	case h.V > 0:
		out = append(out, ButtonUpdate{controller.ButtonUp, true})
	default:
		out = append(out, ButtonUpdate{controller.ButtonDown, true})
	}

	return out
}

// AxisToStick converts normalized horizontal/vertical axis values to a
// stick position. The vertical axis is inverted: physical devices report
// down as positive.
func AxisToStick(h, v float64) controller.StickPosition {
	return controller.StickPosition{
		H: scaleAxis(h),
		V: controller.StickMax - scaleAxis(v),
	}
}

func scaleAxis(v float64) uint16 {
	if math.IsNaN(v) {
		v = 0
	}
	v = max(-1, min(1, v))
	return uint16(math.Round((v + 1) / 2 * controller.StickMax))
}

// AxisToButton reports whether a trigger axis counts as pressed.
func AxisToButton(value, threshold float64) bool {
	return value > threshold
}
