// Package sdlinput implements gamepad.Device on top of the SDL3 joystick API.
package sdlinput

import (
	"fmt"
	"iter"

	"github.com/jupiterrider/purego-sdl3/sdl"
	"github.com/rs/zerolog"

	"github.com/soar/padrelay/internal/gamepad"
)

const (
	hatUp    uint8 = 0x01
	hatRight uint8 = 0x02
	hatDown  uint8 = 0x04
	hatLeft  uint8 = 0x08
)

// SDLDevice is a joystick read through the SDL3 joystick API.
//
// SDL requires every call to come from the thread that initialized it, so
// the goroutine that opens an SDLDevice must hold runtime.LockOSThread for
// the device's whole lifetime.
type SDLDevice struct {
	joystick *sdl.Joystick
	id       sdl.JoystickID
	info     gamepad.DeviceInfo
	log      *zerolog.Logger
}

var _ gamepad.Device = (*SDLDevice)(nil)

// OpenSDL initializes the SDL joystick subsystem and opens the index-th
// connected joystick.
func OpenSDL(index int, logger *zerolog.Logger) (*SDLDevice, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	if !sdl.Init(sdl.InitJoystick) {
		return nil, fmt.Errorf("SDL init failed: %s", sdl.GetError())
	}
	logger.Debug().Msg("SDL3 Joystick subsystem initialized")

	ids := sdl.GetJoysticks()
	if index < 0 || index >= len(ids) {
		sdl.Quit()
		return nil, &gamepad.DeviceNotFoundError{Index: index, Available: len(ids)}
	}

	js := sdl.OpenJoystick(ids[index])
	if js == nil {
		err := fmt.Errorf("open joystick %d: %s", index, sdl.GetError())
		sdl.Quit()
		return nil, err
	}

	d := &SDLDevice{
		joystick: js,
		id:       sdl.GetJoystickID(js),
		info: gamepad.DeviceInfo{
			Name:      sdl.GetJoystickName(js),
			VendorID:  sdl.GetJoystickVendor(js),
			ProductID: sdl.GetJoystickProduct(js),
			Buttons:   int(sdl.GetNumJoystickButtons(js)),
			Axes:      int(sdl.GetNumJoystickAxes(js)),
			Hats:      int(sdl.GetNumJoystickHats(js)),
		},
		log: logger,
	}

	logger.Info().
		Str("name", d.info.Name).
		Str("vid", fmt.Sprintf("%04X", d.info.VendorID)).
		Str("pid", fmt.Sprintf("%04X", d.info.ProductID)).
		Int("axes", d.info.Axes).
		Int("buttons", d.info.Buttons).
		Int("hats", d.info.Hats).
		Msg("Joystick opened")

	return d, nil
}

func (d *SDLDevice) Info() gamepad.DeviceInfo {
	return d.info
}

// PollEvents drains the SDL event queue, yielding the events that belong to
// this joystick. Stopping the iteration early leaves the rest queued.
func (d *SDLDevice) PollEvents() iter.Seq[gamepad.Event] {
	return func(yield func(gamepad.Event) bool) {
		var event sdl.Event
		for sdl.PollEvent(&event) {
			ev, ok := d.convert(&event)
			if !ok {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (d *SDLDevice) convert(event *sdl.Event) (gamepad.Event, bool) {
	switch event.Type() {
	case sdl.EventJoystickButtonDown:
		be := event.JButton()
		if be.Which != d.id {
			return gamepad.Event{}, false
		}
		return gamepad.Event{Kind: gamepad.EventButtonDown, Index: int(be.Button)}, true

	case sdl.EventJoystickButtonUp:
		be := event.JButton()
		if be.Which != d.id {
			return gamepad.Event{}, false
		}
		return gamepad.Event{Kind: gamepad.EventButtonUp, Index: int(be.Button)}, true

	case sdl.EventJoystickHatMotion:
		he := event.JHat()
		if he.Which != d.id {
			return gamepad.Event{}, false
		}
		return gamepad.Event{Kind: gamepad.EventHatMotion, Index: int(he.Hat), Hat: decodeHat(uint8(he.Value))}, true

	case sdl.EventJoystickAxisMotion:
		ae := event.JAxis()
		if ae.Which != d.id {
			return gamepad.Event{}, false
		}
		return gamepad.Event{Kind: gamepad.EventAxisMotion, Index: int(ae.Axis), Value: gamepad.NormalizeAxis(ae.Value)}, true

	case sdl.EventJoystickRemoved:
		if event.JDevice().Which == d.id {
			d.log.Warn().Str("name", d.info.Name).Msg("Joystick disconnected")
		}
	}
	return gamepad.Event{}, false
}

func (d *SDLDevice) ReadButton(index int) bool {
	if index < 0 || index >= d.info.Buttons {
		return false
	}
	return sdl.GetJoystickButton(d.joystick, int32(index))
}

func (d *SDLDevice) ReadHat(index int) gamepad.Hat {
	if index < 0 || index >= d.info.Hats {
		return gamepad.Hat{}
	}
	return decodeHat(sdl.GetJoystickHat(d.joystick, int32(index)))
}

func (d *SDLDevice) ReadAxis(index int) float64 {
	if index < 0 || index >= d.info.Axes {
		return 0
	}
	return gamepad.NormalizeAxis(sdl.GetJoystickAxis(d.joystick, int32(index)))
}

// Close closes the joystick and shuts the SDL subsystem down.
func (d *SDLDevice) Close() error {
	if d.joystick != nil {
		sdl.CloseJoystick(d.joystick)
		d.joystick = nil
		sdl.Quit()
	}
	return nil
}

func decodeHat(v uint8) gamepad.Hat {
	var h gamepad.Hat
	switch {
	case v&hatRight != 0:
		h.H = 1
	case v&hatLeft != 0:
		h.H = -1
	}
	switch {
	case v&hatUp != 0:
		h.V = 1
	case v&hatDown != 0:
		h.V = -1
	}
	return h
}
