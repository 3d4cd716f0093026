// Package cli is the interactive shell used to drive the emulated controller.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/soar/padrelay/internal/controller"
)

const prompt = "cmd >> "

// CommandFunc runs a shell command. ctx is cancelled when the user presses
// <enter> while the command runs.
type CommandFunc func(ctx context.Context, args []string) error

// ButtonPusher is what the shell needs from the controller session.
type ButtonPusher interface {
	PushButton(ctx context.Context, button string, d time.Duration) error
}

type command struct {
	help string
	fn   CommandFunc
}

type CLI struct {
	session  ButtonPusher
	in       io.Reader
	out      io.Writer
	log      *zerolog.Logger
	commands map[string]command

	mu     sync.Mutex
	waiter chan struct{}
}

func New(session ButtonPusher, in io.Reader, out io.Writer, logger *zerolog.Logger) *CLI {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &CLI{
		session:  session,
		in:       in,
		out:      out,
		log:      logger,
		commands: make(map[string]command),
	}
}

// AddCommand registers a command. help is printed by the help built-in; its
// first line should read "name - what it does".
func (c *CLI) AddCommand(name, help string, fn CommandFunc) {
	c.commands[name] = command{help: strings.TrimSpace(help), fn: fn}
}

// Printf writes to the shell output.
func (c *CLI) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// WaitEnter prints msg and blocks a running command until the user presses
// <enter>. That <enter> does not cancel the command.
func (c *CLI) WaitEnter(ctx context.Context, msg string) error {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiter = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.waiter == ch {
			c.waiter = nil
		}
		c.mu.Unlock()
	}()

	fmt.Fprintln(c.out, msg)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run reads commands until exit, end of input or ctx cancellation.
func (c *CLI) Run(ctx context.Context) error {
	lines := make(chan string)
	var readErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr = sc.Err()
	}()

	for {
		fmt.Fprint(c.out, prompt)

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return readErr
			}
			line = l
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		name, args := fields[0], fields[1:]
		var fn CommandFunc
		switch {
		case name == "exit" || name == "quit":
			return nil
		case name == "help":
			c.printHelp()
			continue
		case c.commands[name].fn != nil:
			fn = c.commands[name].fn
		case allButtons(fields):
			fn = c.pushButtons(fields)
			args = nil
		default:
			fmt.Fprintf(c.out, "command %q not found, call help for help.\n", name)
			continue
		}

		if eof := c.runCommand(ctx, lines, name, fn, args); eof {
			return readErr
		}
	}
}

// runCommand runs fn until it returns. A line typed meanwhile goes to a
// pending WaitEnter or cancels the command. It reports whether input ended.
func (c *CLI) runCommand(ctx context.Context, lines <-chan string, name string, fn CommandFunc, args []string) bool {
	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cmdCtx, args) }()

	eof := false
	for {
		select {
		case err := <-done:
			c.report(name, err)
			return eof
		case _, ok := <-lines:
			if !ok {
				eof = true
				lines = nil
				cancel()
				continue
			}
			c.mu.Lock()
			waiter := c.waiter
			c.waiter = nil
			c.mu.Unlock()
			if waiter != nil {
				close(waiter)
			} else {
				cancel()
			}
		case <-ctx.Done():
			cancel()
			c.report(name, <-done)
			return eof
		}
	}
}

func (c *CLI) report(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.log.Warn().Err(err).Str("command", name).Msg("Command failed")
	fmt.Fprintf(c.out, "%s: %v\n", name, err)
}

func (c *CLI) pushButtons(buttons []string) CommandFunc {
	return func(ctx context.Context, _ []string) error {
		for _, b := range buttons {
			if err := c.session.PushButton(ctx, b, controller.DefaultPushDuration); err != nil {
				return err
			}
		}
		return nil
	}
}

func allButtons(fields []string) bool {
	for _, f := range fields {
		if !controller.IsButton(f) {
			return false
		}
	}
	return true
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "Commands:")
	for _, name := range slices.Sorted(maps.Keys(c.commands)) {
		help := c.commands[name].help
		if help == "" {
			help = name
		}
		for line := range strings.SplitSeq(help, "\n") {
			fmt.Fprintf(c.out, "  %s\n", line)
		}
	}
	fmt.Fprintln(c.out, "  help - show this help")
	fmt.Fprintln(c.out, "  exit, quit - leave the shell")
	fmt.Fprintln(c.out, "Button names separated by spaces (e.g. \"a b home\") push those buttons in order.")
}
