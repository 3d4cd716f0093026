// Package tray shows the Windows system tray icon: open the monitor, start
// or stop the relay, exit.
package tray

import (
	"context"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
	"github.com/rs/zerolog"
)

// RelayControl is the relay surface the tray menu drives.
type RelayControl interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// ShutdownFunc is called when "Exit" is clicked
type ShutdownFunc func()

type Options struct {
	// MonitorURL is opened by "Open Monitor"; the item is hidden when empty.
	MonitorURL string
	Relay      RelayControl
	Shutdown   ShutdownFunc
}

// Tray manages the system tray icon and menu
type Tray struct {
	opts         Options
	log          *zerolog.Logger
	ctx          context.Context
	once         sync.Once
	shuttingDown atomic.Bool
	menuOpen     *systray.MenuItem
	menuRelay    *systray.MenuItem
	menuExit     *systray.MenuItem
}

// New creates a tray. Relays started from the menu stop when ctx is done.
func New(ctx context.Context, opts Options, logger *zerolog.Logger) *Tray {
	return &Tray{
		opts: opts,
		log:  logger,
		ctx:  ctx,
	}
}

// Run initializes and runs the system tray (blocks until Quit())
func (t *Tray) Run(iconData []byte) {
	systray.Run(func() {
		t.onReady(iconData)
	}, func() {
		t.onExit()
	})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	t.shuttingDown.Store(true)
	systray.Quit()
}

func (t *Tray) onReady(iconData []byte) {
	if iconData != nil {
		systray.SetIcon(iconData)
	}
	systray.SetTitle("padrelay")
	tooltip := "padrelay"
	if t.opts.MonitorURL != "" {
		tooltip += " - " + t.opts.MonitorURL
	}
	systray.SetTooltip(tooltip)

	t.menuOpen = systray.AddMenuItem("Open Monitor", "Open the web monitor")
	if t.opts.MonitorURL == "" {
		t.menuOpen.Hide()
	}
	t.menuRelay = systray.AddMenuItem(relayLabel(t.opts.Relay.Running()), "Start or stop relaying the input device")
	systray.AddSeparator()
	t.menuExit = systray.AddMenuItem("Exit", "Quit padrelay")

	// Handle menu clicks in separate goroutines to prevent blocking
	go t.handleMenuClicks()

	t.log.Info().Msg("System tray initialized")
}

func relayLabel(running bool) string {
	if running {
		return "Stop Relay"
	}
	return "Start Relay"
}

func (t *Tray) handleMenuClicks() {
	for {
		select {
		case <-t.menuOpen.ClickedCh:
			if !t.shuttingDown.Load() {
				t.openBrowser()
			}
		case <-t.menuRelay.ClickedCh:
			if t.shuttingDown.Load() {
				continue
			}
			t.toggleRelay()
		case <-t.menuExit.ClickedCh:
			if t.shuttingDown.CompareAndSwap(false, true) {
				t.once.Do(t.opts.Shutdown)
				systray.Quit()
				return
			}
		}
	}
}

func (t *Tray) toggleRelay() {
	if t.opts.Relay.Running() {
		t.opts.Relay.Stop()
		t.log.Info().Msg("Relay stopped from tray")
	} else if err := t.opts.Relay.Start(t.ctx); err != nil {
		t.log.Warn().Err(err).Msg("Failed to start relay from tray")
	} else {
		t.log.Info().Msg("Relay started from tray")
	}
	t.menuRelay.SetTitle(relayLabel(t.opts.Relay.Running()))
}

func (t *Tray) onExit() {
	t.shuttingDown.Store(true)
	t.log.Info().Msg("System tray exiting")
}

func (t *Tray) openBrowser() {
	url := t.opts.MonitorURL
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		t.log.Warn().Err(err).Str("url", url).Msg("Failed to open browser")
	}
}
