package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/soar/padrelay/internal/cli"
	"github.com/soar/padrelay/internal/config"
	"github.com/soar/padrelay/internal/console"
	"github.com/soar/padrelay/internal/controller"
	"github.com/soar/padrelay/internal/gamepad"
	"github.com/soar/padrelay/internal/gamepad/sdlinput"
	"github.com/soar/padrelay/internal/hub"
	"github.com/soar/padrelay/internal/logging"
	"github.com/soar/padrelay/internal/macro"
	"github.com/soar/padrelay/internal/relay"
	"github.com/soar/padrelay/internal/server"
	"github.com/soar/padrelay/internal/tray"
)

// Cross-platform signal handling: use os.Interrupt on all platforms
// On Windows: os.Interrupt is sent when Ctrl+C is pressed
// On Unix: os.Interrupt is equivalent to syscall.SIGINT
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	os.Exit(run())
}

func run() int {
	fromConsole := console.IsRunningFromConsole()

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Usage: padrelay [flags] [JOYCON_R|JOYCON_L|PRO_CONTROLLER]\n\n%s", config.FlagSet().FlagUsages())
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "padrelay: %v\n", err)
		return 2
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "padrelay: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	consoleShutdown := make(chan struct{})
	reRegister := console.SetupConsoleHandler(consoleShutdown, &logger)

	state := controller.NewState(cfg.Kind, logging.Subsystem(&logger, "controller"))
	state.MarkConnected()

	shell := cli.New(state, os.Stdin, os.Stdout, logging.Subsystem(&logger, "cli"))
	player := macro.NewPlayer(state, shell, os.Stdout, logging.Subsystem(&logger, "macro"))
	if cfg.AuxData != "" {
		if err := player.LoadAuxData(cfg.AuxData); err != nil {
			logger.Error().Err(err).Msg("Failed to load amiibo")
			return 1
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(reg)

	inputLog := logging.Subsystem(&logger, "input")
	open := func(index int) (gamepad.Device, error) {
		dev, err := sdlinput.OpenSDL(index, inputLog)
		if err != nil {
			return nil, err
		}
		// SDL replaces the console control handler during init
		reRegister()
		return dev, nil
	}

	r, err := relay.New(cfg.RelayConfig(), state, open, metrics, logging.Subsystem(&logger, "relay"))
	if err != nil {
		logger.Error().Err(err).Msg("Invalid relay configuration")
		return 1
	}
	manager := relay.NewManager(r, logging.Subsystem(&logger, "relay"))

	var srv *server.Server
	serverErrCh := make(chan error, 1)
	monitorURL := ""
	if cfg.Monitor.Enabled {
		h := hub.NewHub(logging.Subsystem(&logger, "hub"))
		go h.Run(ctx)
		broadcaster := hub.NewBroadcaster(h, state.Changes(), state.Snapshot())
		go broadcaster.Run(ctx)

		srv, err = server.New(server.Options{
			Addr:        cfg.Monitor.Addr,
			Hub:         h,
			Broadcaster: broadcaster,
			Pusher:      state,
			Gatherer:    reg,
			Page:        statusPage,
		}, logging.Subsystem(&logger, "server"))
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create monitor server")
			return 1
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				serverErrCh <- err
			}
		}()
		host := cfg.Monitor.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		monitorURL = "http://" + host
	}

	logger.Info().Stringer("controller", cfg.Kind).Str("monitor", monitorURL).Msg("padrelay started")

	// Without a console the shell cannot run, so relay right away.
	if cfg.Relay.Autostart || !fromConsole {
		if err := manager.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to start relay")
		}
	}

	shellDone := make(chan error, 1)
	if fromConsole {
		a := &app{
			ctx:         ctx,
			deviceIndex: cfg.DeviceIndex,
			relay:       r,
			manager:     manager,
			player:      player,
			open:        open,
		}
		a.registerCommands(shell)
		go func() { shellDone <- shell.Run(ctx) }()
	}

	trayExit := make(chan struct{})
	var t *tray.Tray
	if runtime.GOOS == "windows" && cfg.Tray {
		t = tray.New(ctx, tray.Options{
			MonitorURL: monitorURL,
			Relay:      manager,
			Shutdown:   func() { close(trayExit) },
		}, logging.Subsystem(&logger, "tray"))
		go t.Run(tray.Icon())
	} else if !fromConsole {
		logger.Info().Msg("Press Ctrl+C to exit")
	}

	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down...")
	case <-consoleShutdown:
		logger.Info().Msg("Shutting down...")
	case <-trayExit:
		logger.Info().Msg("Shutdown requested from tray")
	case err := <-shellDone:
		if err != nil {
			logger.Error().Err(err).Msg("Shell stopped")
		}
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("HTTP server error")
	}
	cancel()

	shutdown(manager, state, srv, t, &logger)
	return 0
}

func shutdown(manager *relay.Manager, state *controller.State, srv *server.Server, t *tray.Tray, logger *zerolog.Logger) {
	manager.Stop()

	logger.Info().Msg("Stopping communication...")
	_ = state.Close()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server shutdown error")
		}
	}
	if t != nil {
		t.Quit()
	}

	logger.Info().Msg("padrelay stopped")
}
