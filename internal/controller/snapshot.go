package controller

type ButtonState struct {
	A       bool `json:"a"`
	B       bool `json:"b"`
	X       bool `json:"x"`
	Y       bool `json:"y"`
	L       bool `json:"l"`
	R       bool `json:"r"`
	ZL      bool `json:"zl"`
	ZR      bool `json:"zr"`
	LStick  bool `json:"l_stick"`
	RStick  bool `json:"r_stick"`
	Plus    bool `json:"plus"`
	Minus   bool `json:"minus"`
	Home    bool `json:"home"`
	Capture bool `json:"capture"`
}

type DpadState struct {
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// StickPosition is a 12-bit stick coordinate pair, 0..4095 on each axis
// with 2048 at rest.
type StickPosition struct {
	H uint16 `json:"h"`
	V uint16 `json:"v"`
}

const (
	StickMax    = 4095
	StickCenter = 2048
)

var StickRest = StickPosition{H: StickCenter, V: StickCenter}

type SticksState struct {
	Left  StickPosition `json:"left"`
	Right StickPosition `json:"right"`
}

// Snapshot is a point-in-time copy of the emulated controller state.
type Snapshot struct {
	Connected  bool        `json:"connected"`
	Closed     bool        `json:"closed"`
	Kind       string      `json:"kind"`
	Buttons    ButtonState `json:"buttons"`
	Dpad       DpadState   `json:"dpad"`
	Sticks     SticksState `json:"sticks"`
	HasAuxData bool        `json:"hasAuxData"`
}

func snapshotButtons(bits buttonBitmap) (ButtonState, DpadState) {
	return ButtonState{
			A:       bits.get(ButtonA),
			B:       bits.get(ButtonB),
			X:       bits.get(ButtonX),
			Y:       bits.get(ButtonY),
			L:       bits.get(ButtonL),
			R:       bits.get(ButtonR),
			ZL:      bits.get(ButtonZL),
			ZR:      bits.get(ButtonZR),
			LStick:  bits.get(ButtonLStick),
			RStick:  bits.get(ButtonRStick),
			Plus:    bits.get(ButtonPlus),
			Minus:   bits.get(ButtonMinus),
			Home:    bits.get(ButtonHome),
			Capture: bits.get(ButtonCapture),
		}, DpadState{
			Up:    bits.get(ButtonUp),
			Down:  bits.get(ButtonDown),
			Left:  bits.get(ButtonLeft),
			Right: bits.get(ButtonRight),
		}
}

// DeltaChanges carries only the parts of a Snapshot that differ from the
// previous one.
type DeltaChanges struct {
	Connected  *bool        `json:"connected,omitempty"`
	Closed     *bool        `json:"closed,omitempty"`
	Kind       *string      `json:"kind,omitempty"`
	Buttons    *ButtonState `json:"buttons,omitempty"`
	Dpad       *DpadState   `json:"dpad,omitempty"`
	Sticks     *SticksState `json:"sticks,omitempty"`
	HasAuxData *bool        `json:"hasAuxData,omitempty"`
}

func (d *DeltaChanges) IsEmpty() bool {
	return d.Connected == nil &&
		d.Closed == nil &&
		d.Kind == nil &&
		d.Buttons == nil &&
		d.Dpad == nil &&
		d.Sticks == nil &&
		d.HasAuxData == nil
}

func ComputeDelta(old, new_ Snapshot) *DeltaChanges {
	d := &DeltaChanges{}

	if old.Connected != new_.Connected {
		d.Connected = &new_.Connected
	}
	if old.Closed != new_.Closed {
		d.Closed = &new_.Closed
	}
	if old.Kind != new_.Kind {
		d.Kind = &new_.Kind
	}
	if old.Buttons != new_.Buttons {
		d.Buttons = &new_.Buttons
	}
	if old.Dpad != new_.Dpad {
		d.Dpad = &new_.Dpad
	}
	if old.Sticks != new_.Sticks {
		d.Sticks = &new_.Sticks
	}
	if old.HasAuxData != new_.HasAuxData {
		d.HasAuxData = &new_.HasAuxData
	}

	return d
}
