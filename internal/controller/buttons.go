package controller

// Canonical button names.
const (
	ButtonA       = "a"
	ButtonB       = "b"
	ButtonX       = "x"
	ButtonY       = "y"
	ButtonL       = "l"
	ButtonR       = "r"
	ButtonZL      = "zl"
	ButtonZR      = "zr"
	ButtonLStick  = "l_stick"
	ButtonRStick  = "r_stick"
	ButtonPlus    = "plus"
	ButtonMinus   = "minus"
	ButtonHome    = "home"
	ButtonCapture = "capture"
	ButtonUp      = "up"
	ButtonDown    = "down"
	ButtonLeft    = "left"
	ButtonRight   = "right"
)

// Analog stick names.
const (
	StickLeft  = "l_stick_analog"
	StickRight = "r_stick_analog"
)

// Buttons lists every canonical button name in report order.
var Buttons = []string{
	ButtonY, ButtonX, ButtonB, ButtonA, ButtonR, ButtonZR,
	ButtonMinus, ButtonPlus, ButtonRStick, ButtonLStick, ButtonHome, ButtonCapture,
	ButtonDown, ButtonUp, ButtonRight, ButtonLeft, ButtonL, ButtonZL,
}

// Button report layout, three bytes:
//
//	byte 0 (right):  Y X B A SR SL R ZR
//	byte 1 (shared): - + RStick LStick Home Capture -- ChargingGrip
//	byte 2 (left):   Down Up Right Left SR SL L ZL
//
// SR/SL and the charging grip bit are never set.
var buttonBits = map[string]struct {
	index int
	bit   uint
}{
	ButtonY:       {0, 0},
	ButtonX:       {0, 1},
	ButtonB:       {0, 2},
	ButtonA:       {0, 3},
	ButtonR:       {0, 6},
	ButtonZR:      {0, 7},
	ButtonMinus:   {1, 0},
	ButtonPlus:    {1, 1},
	ButtonRStick:  {1, 2},
	ButtonLStick:  {1, 3},
	ButtonHome:    {1, 4},
	ButtonCapture: {1, 5},
	ButtonDown:    {2, 0},
	ButtonUp:      {2, 1},
	ButtonRight:   {2, 2},
	ButtonLeft:    {2, 3},
	ButtonL:       {2, 6},
	ButtonZL:      {2, 7},
}

// IsButton reports whether name is a canonical button name.
func IsButton(name string) bool {
	_, ok := buttonBits[name]
	return ok
}

// IsStick reports whether name is an analog stick name.
func IsStick(name string) bool {
	return name == StickLeft || name == StickRight
}

type buttonBitmap [3]byte

func (b *buttonBitmap) set(name string, pressed bool) (changed bool) {
	info, ok := buttonBits[name]
	if !ok {
		return false
	}
	mask := byte(1) << info.bit
	was := b[info.index]&mask != 0
	if was == pressed {
		return false
	}
	if pressed {
		b[info.index] |= mask
	} else {
		b[info.index] &^= mask
	}
	return true
}

func (b *buttonBitmap) get(name string) bool {
	info, ok := buttonBits[name]
	if !ok {
		return false
	}
	return b[info.index]&(1<<info.bit) != 0
}
