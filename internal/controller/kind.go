package controller

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the type of controller being emulated.
type Kind uint8

const (
	JoyConL Kind = iota + 1
	JoyConR
	ProController
)

func (k Kind) String() string {
	switch k {
	case JoyConL:
		return "JOYCON_L"
	case JoyConR:
		return "JOYCON_R"
	case ProController:
		return "PRO_CONTROLLER"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind parses the command line spelling of a controller kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JOYCON_L":
		return JoyConL, nil
	case "JOYCON_R":
		return JoyConR, nil
	case "PRO_CONTROLLER":
		return ProController, nil
	}
	return 0, fmt.Errorf("unknown controller %q: expected JOYCON_L, JOYCON_R or PRO_CONTROLLER", s)
}

// AvailableButtons returns the canonical buttons present on this kind of
// controller, in report order.
func (k Kind) AvailableButtons() []string {
	var missing []string
	switch k {
	case JoyConL:
		missing = []string{ButtonY, ButtonX, ButtonB, ButtonA, ButtonR, ButtonZR, ButtonPlus, ButtonRStick, ButtonHome}
	case JoyConR:
		missing = []string{ButtonMinus, ButtonLStick, ButtonCapture, ButtonDown, ButtonUp, ButtonRight, ButtonLeft, ButtonL, ButtonZL}
	case ProController:
	default:
		return nil
	}

	out := make([]string, 0, len(Buttons)-len(missing))
	for _, name := range Buttons {
		if !slices.Contains(missing, name) {
			out = append(out, name)
		}
	}
	return out
}

// Sticks returns the analog sticks present on this kind of controller.
func (k Kind) Sticks() []string {
	switch k {
	case JoyConL:
		return []string{StickLeft}
	case JoyConR:
		return []string{StickRight}
	case ProController:
		return []string{StickLeft, StickRight}
	}
	return nil
}

// SupportsAuxiliaryData reports whether the controller carries an NFC reader.
func (k Kind) SupportsAuxiliaryData() bool {
	return k == JoyConR || k == ProController
}
