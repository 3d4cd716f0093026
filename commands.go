package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/soar/padrelay/internal/cli"
	"github.com/soar/padrelay/internal/gamepad"
	"github.com/soar/padrelay/internal/macro"
	"github.com/soar/padrelay/internal/relay"
)

// app holds what the shell commands operate on.
type app struct {
	ctx         context.Context
	deviceIndex int
	relay       *relay.Relay
	manager     *relay.Manager
	player      *macro.Player
	open        gamepad.Opener
}

func (a *app) registerCommands(shell *cli.CLI) {
	shell.AddCommand("relay", `relay - run the input relay
    relay           Relay in the foreground until <enter>
    relay start     Start relaying in the background
    relay stop      Stop the background relay
    relay status    Show whether the relay is running`, a.relayCommand(shell))

	shell.AddCommand("init_relay", "init_relay - open the input device and show its button layout",
		func(ctx context.Context, args []string) error {
			return a.printLayout(shell)
		})

	shell.AddCommand("test_buttons", `test_buttons - navigate to the "Test Controller Buttons" menu and press all buttons`,
		func(ctx context.Context, args []string) error {
			return a.player.TestButtons(ctx)
		})

	shell.AddCommand("mash", `mash - mash a button at a set interval
    mash <button> <interval>    interval in seconds ("0.5") or as a duration ("500ms")`,
		func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return errors.New(`"mash" requires a button and an interval`)
			}
			interval, err := macro.ParseInterval(args[1])
			if err != nil {
				return err
			}
			return a.player.Mash(ctx, args[0], interval)
		})

	shell.AddCommand("amiibo", `amiibo - set the NFC content
    amiibo <file>     Load an amiibo dump
    amiibo remove     Remove the NFC content`,
		func(ctx context.Context, args []string) error {
			switch {
			case len(args) != 1:
				return errors.New(`"amiibo" requires a dump file or "remove"`)
			case args[0] == "remove":
				return a.player.RemoveAuxData()
			default:
				return a.player.LoadAuxData(args[0])
			}
		})
}

func (a *app) relayCommand(shell *cli.CLI) cli.CommandFunc {
	return func(ctx context.Context, args []string) error {
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		switch sub {
		case "":
			if err := a.manager.Start(ctx); err != nil {
				return err
			}
			shell.Printf("Relaying... Press <enter> to stop.\n")
			select {
			case <-ctx.Done():
				a.manager.Stop()
				return nil
			case <-a.manager.Done():
				return a.manager.Err()
			}
		case "start":
			if err := a.manager.Start(a.ctx); err != nil {
				return err
			}
			shell.Printf("Relay started.\n")
		case "stop":
			a.manager.Stop()
			shell.Printf("Relay stopped.\n")
		case "status":
			switch {
			case a.manager.Running():
				shell.Printf("Relay running.\n")
			case a.manager.Err() != nil:
				shell.Printf("Relay stopped: %v\n", a.manager.Err())
			default:
				shell.Printf("Relay stopped.\n")
			}
		default:
			return fmt.Errorf("unknown relay command %q", sub)
		}
		return nil
	}
}

func (a *app) printLayout(shell *cli.CLI) error {
	err := a.manager.WhileIdle(func() error {
		return a.showLayout(shell)
	})
	if errors.Is(err, relay.ErrAlreadyRunning) {
		return errors.New("stop the relay first")
	}
	return err
}

func (a *app) showLayout(shell *cli.CLI) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	dev, err := a.open(a.deviceIndex)
	if err != nil {
		return err
	}
	defer dev.Close()

	info := dev.Info()
	buttons, axes, err := a.relay.Layout(info)
	if err != nil {
		return err
	}

	shell.Printf("%s (%04x:%04x) %d buttons, %d axes, %d hats\n",
		info.Name, info.VendorID, info.ProductID, info.Buttons, info.Axes, info.Hats)
	var b strings.Builder
	for _, bind := range buttons.Bindings() {
		fmt.Fprintf(&b, " %s:%d", bind.Button, bind.Index)
	}
	shell.Printf("buttons%s\n", b.String())
	for _, s := range axes.Sticks() {
		shell.Printf("%s axes %d,%d\n", s.Stick, s.Horizontal, s.Vertical)
	}
	for _, t := range axes.Triggers() {
		shell.Printf("%s axis %d > %.2f\n", t.Button, t.Axis, t.Threshold)
	}
	return nil
}
