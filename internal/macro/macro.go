// Package macro holds scripted controller routines run from the shell.
package macro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/soar/padrelay/internal/controller"
)

var ErrProControllerOnly = errors.New("this script only works with the Pro Controller")

// Session is the controller surface macros drive.
type Session interface {
	Connect(ctx context.Context) error
	PushButton(ctx context.Context, button string, d time.Duration) error
	SetAuxiliaryData(data []byte) error
	AvailableButtons() []string
	Kind() controller.Kind
}

// Prompter waits for the user to acknowledge a message.
type Prompter interface {
	WaitEnter(ctx context.Context, msg string) error
}

type Player struct {
	session Session
	prompt  Prompter
	out     io.Writer
	log     *zerolog.Logger

	// sleep pauses between pushes; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPlayer(session Session, prompt Prompter, out io.Writer, logger *zerolog.Logger) *Player {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Player{
		session: session,
		prompt:  prompt,
		out:     out,
		log:     logger,
		sleep:   sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type step struct {
	button string
	hold   time.Duration
	pause  time.Duration
}

// From the Home menu to System Settings > Controllers and Sensors > Test
// Input Devices > Test Controller Buttons.
var testMenuPath = []step{
	{controller.ButtonDown, time.Second, 0},
	{controller.ButtonRight, 2 * time.Second, 300 * time.Millisecond},
	{controller.ButtonLeft, 0, 300 * time.Millisecond},
	{controller.ButtonA, 0, 300 * time.Millisecond},
	{controller.ButtonDown, 4 * time.Second, 300 * time.Millisecond},
	{controller.ButtonUp, 0, 300 * time.Millisecond},
	{controller.ButtonUp, 0, 300 * time.Millisecond},
	{controller.ButtonRight, 0, 300 * time.Millisecond},
	{controller.ButtonDown, 3 * time.Second, 300 * time.Millisecond},
	{controller.ButtonUp, 0, 300 * time.Millisecond},
	{controller.ButtonA, 0, 300 * time.Millisecond},
	{controller.ButtonA, 0, 300 * time.Millisecond},
}

// TestButtons navigates to the "Test Controller Buttons" menu and pushes
// every button except home and capture until ctx is cancelled, then returns
// to the Home menu.
func (p *Player) TestButtons(ctx context.Context) error {
	if p.session.Kind() != controller.ProController {
		return ErrProControllerOnly
	}
	if err := p.session.Connect(ctx); err != nil {
		return err
	}
	if err := p.prompt.WaitEnter(ctx, "Make sure the Switch is in the Home menu and press <enter> to continue."); err != nil {
		return err
	}

	for _, s := range testMenuPath {
		if err := p.session.PushButton(ctx, s.button, s.hold); err != nil {
			return err
		}
		if s.pause > 0 {
			if err := p.sleep(ctx, s.pause); err != nil {
				return err
			}
		}
	}

	buttons := slices.DeleteFunc(slices.Clone(p.session.AvailableButtons()), func(b string) bool {
		return b == controller.ButtonHome || b == controller.ButtonCapture
	})

	fmt.Fprintln(p.out, "Pressing all buttons... Press <enter> to stop.")
	p.log.Info().Strs("buttons", buttons).Msg("Testing controller buttons")
	err := p.pushUntilDone(ctx, buttons, 100*time.Millisecond)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return p.session.PushButton(context.WithoutCancel(ctx), controller.ButtonHome, 0)
}

// Mash pushes button every interval until ctx is cancelled.
func (p *Player) Mash(ctx context.Context, button string, interval time.Duration) error {
	if err := p.session.Connect(ctx); err != nil {
		return err
	}
	if !slices.Contains(p.session.AvailableButtons(), button) {
		return fmt.Errorf("button %s does not exist on %s: %w", button, p.session.Kind(), controller.ErrUnknownButton)
	}

	fmt.Fprintf(p.out, "Pressing the %s button every %s... Press <enter> to stop.\n", button, interval)
	err := p.pushUntilDone(ctx, []string{button}, interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Player) pushUntilDone(ctx context.Context, buttons []string, pause time.Duration) error {
	for {
		for _, b := range buttons {
			if err := p.session.PushButton(ctx, b, 0); err != nil {
				return err
			}
			if err := p.sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
}

// LoadAuxData sets the controller's NFC content to an amiibo dump.
func (p *Player) LoadAuxData(path string) error {
	if !p.session.Kind().SupportsAuxiliaryData() {
		return fmt.Errorf("NFC content cannot be set for %s: %w", p.session.Kind(), controller.ErrAuxDataUnsupported)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read amiibo dump: %w", err)
	}
	if err := p.session.SetAuxiliaryData(data); err != nil {
		return err
	}
	p.log.Info().Str("path", path).Int("bytes", len(data)).Msg("Loaded amiibo")
	return nil
}

// RemoveAuxData clears the controller's NFC content.
func (p *Player) RemoveAuxData() error {
	if !p.session.Kind().SupportsAuxiliaryData() {
		return fmt.Errorf("NFC content cannot be set for %s: %w", p.session.Kind(), controller.ErrAuxDataUnsupported)
	}
	if err := p.session.SetAuxiliaryData(nil); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Removed nfc content.")
	return nil
}

// ParseInterval reads a mash interval as seconds ("0.5") or a Go duration
// ("500ms").
func ParseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("interval must be positive, got %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", s)
	}
	return d, nil
}
