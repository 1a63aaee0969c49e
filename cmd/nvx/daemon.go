// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nvx/cmd/nvx/cli"
	"github.com/bureau-foundation/nvx/lib/census"
	"github.com/bureau-foundation/nvx/lib/clock"
	"github.com/bureau-foundation/nvx/lib/config"
	"github.com/bureau-foundation/nvx/lib/control"
	"github.com/bureau-foundation/nvx/lib/egl"
	"github.com/bureau-foundation/nvx/lib/journal"
	"github.com/bureau-foundation/nvx/lib/power"
	"github.com/bureau-foundation/nvx/lib/runner"
	"github.com/bureau-foundation/nvx/lib/session"
	"github.com/bureau-foundation/nvx/lib/sysfs"
	"github.com/bureau-foundation/nvx/lib/topology"
	"github.com/bureau-foundation/nvx/lib/version"
)

// journalMaxAge is how old a leftover journal may be and still be
// reported at boot.
const journalMaxAge = time.Hour

func daemonCommand() *cli.Command {
	var (
		configPath string
		socketPath string
	)
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"boot"},
		Summary: "Run the power daemon (as root)",
		Description: `Run the power daemon.

At start the daemon hides the NVIDIA EGL vendor (when egl_vendor_path is
set), unloads the driver modules, and removes the GPU from the PCI bus.
It then serves the control socket until SIGINT or SIGTERM, and restores
the EGL vendor on the way out.

Configuration is read from --config, else $NVX_CONFIG, else
/etc/nvx.yaml when present, else built-in defaults.`,
		Usage: "nvx daemon [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("daemon", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "configuration file")
			flagSet.StringVar(&socketPath, "socket", "", "control socket (overrides socket_path)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if socketPath != "" {
				cfg.SocketPath = socketPath
			}

			logger, logFile := newDaemonLogger(cfg.LogPath)
			if logFile != nil {
				defer logFile.Close()
			}
			slog.SetDefault(logger)

			timeout, _ := cfg.Timeout()
			d := newDaemon(cfg, collaborators{
				runner:   runner.Exec{Timeout: timeout},
				sysfs:    sysfs.FS{Root: cfg.SysRoot},
				signaler: census.UnixSignaler{},
				clock:    clock.Real(),
			}, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.run(ctx)
		},
	}
}

// loadConfig reads the file at path, or the NVX_CONFIG/default file
// when path is empty, and validates it.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newDaemonLogger logs JSON to stderr and, when logPath can be opened,
// to logPath as well. The returned file is nil when only stderr is used.
func newDaemonLogger(logPath string) (*slog.Logger, *os.File) {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if logPath == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	}

	file, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, options))
		logger.Warn("log file unavailable, logging to stderr only", "path", logPath, "error", err)
		return logger, nil
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, file), options)), file
}

// collaborators are the daemon's points of contact with the machine.
// Tests substitute fakes.
type collaborators struct {
	runner   runner.Runner
	sysfs    sysfs.Writer
	signaler census.Signaler
	clock    clock.Clock
}

// daemon is the assembled power daemon.
type daemon struct {
	config     *config.Config
	clock      clock.Clock
	logger     *slog.Logger
	engine     *power.Engine
	journal    *journal.Recorder
	dispatcher *session.Dispatcher
	server     *control.Server
}

func newDaemon(cfg *config.Config, deps collaborators, logger *slog.Logger) *daemon {
	discoverer := topology.NewDiscoverer(
		deps.runner,
		topology.Filter{Classes: cfg.Device.Classes, Vendors: cfg.Device.Vendors},
		cfg.Tools.Topology,
		logger.With("component", "topology"),
	)
	engine := power.NewEngine(power.Config{
		Sysfs:    deps.sysfs,
		Devices:  discoverer,
		Runner:   deps.runner,
		Modprobe: cfg.Tools.Modprobe,
		Modules:  power.Modules{Sequence: cfg.Modules.Sequence, Inbox: cfg.Modules.Inbox},
		Logger:   logger.With("component", "power"),
	})
	processes := census.New(census.Config{
		Runner:       deps.runner,
		Lsof:         cfg.Tools.Lsof,
		DeviceGlob:   cfg.Census.DeviceGlob,
		ControlNodes: cfg.Census.ControlNodes,
		Signaler:     deps.signaler,
		Logger:       logger.With("component", "census"),
	})
	recorder := journal.NewRecorder(cfg.JournalPath, deps.clock, logger.With("component", "journal"))
	dispatcher := session.New(session.Config{
		Devices:   discoverer,
		Power:     engine,
		Processes: processes,
		Journal:   recorder,
		KillOnOff: cfg.KillOnOff,
		Logger:    logger.With("component", "session"),
	})

	return &daemon{
		config:     cfg,
		clock:      deps.clock,
		logger:     logger,
		engine:     engine,
		journal:    recorder,
		dispatcher: dispatcher,
		server:     control.NewServer(cfg.SocketPath, dispatcher, logger.With("component", "control")),
	}
}

// run claims the socket, resets the GPU to off, and serves until ctx is
// cancelled.
func (d *daemon) run(ctx context.Context) error {
	listener, err := d.start(ctx)
	if err != nil {
		return err
	}
	return d.serve(ctx, listener)
}

// start claims the control socket and puts the machine in its boot
// state. The socket is claimed first so a daemon that cannot serve
// never touches the hardware.
func (d *daemon) start(ctx context.Context) (net.Listener, error) {
	d.logger.Info("nvx daemon starting",
		"version", version.Info(),
		"socket", d.config.SocketPath,
		"sys_root", d.config.SysRoot,
		"kill_on_off", d.config.KillOnOff,
	)

	listener, err := d.server.Listen()
	if err != nil {
		return nil, err
	}

	d.checkJournal()
	d.applyEGLOverride()
	d.forceOff(context.WithoutCancel(ctx))
	return listener, nil
}

// serve answers control commands until ctx is cancelled, then restores
// the EGL vendor.
func (d *daemon) serve(ctx context.Context, listener net.Listener) error {
	serveErr := d.server.ServeListener(ctx, listener)

	d.revertEGLOverride()
	d.logger.Info("nvx daemon stopped", "sessions", d.dispatcher.Sessions())
	return serveErr
}

// checkJournal reports a transition the previous daemon did not finish.
// The boot power-off that follows puts the hardware back in a known
// state either way.
func (d *daemon) checkJournal() {
	if d.config.JournalPath == "" {
		return
	}
	state, fresh, err := journal.Check(d.config.JournalPath, journalMaxAge, d.clock)
	if err != nil {
		d.logger.Warn("unreadable transition journal", "path", d.config.JournalPath, "error", err)
		return
	}
	if !fresh {
		return
	}
	d.logger.Warn("previous daemon stopped during a power transition",
		"transition", state.Transition,
		"sessions", state.Sessions,
		"pid", state.PID,
		"at", state.Timestamp,
	)
}

func (d *daemon) applyEGLOverride() {
	if d.config.EGLVendorPath == "" {
		return
	}
	if err := egl.Apply(d.config.EGLVendorPath); err != nil {
		d.logger.Warn("applying EGL vendor override failed", "path", d.config.EGLVendorPath, "error", err)
		return
	}
	d.logger.Info("EGL vendor override applied", "path", d.config.EGLVendorPath)
}

func (d *daemon) revertEGLOverride() {
	if d.config.EGLVendorPath == "" {
		return
	}
	if err := egl.Revert(d.config.EGLVendorPath); err != nil {
		d.logger.Warn("reverting EGL vendor override failed", "path", d.config.EGLVendorPath, "error", err)
		return
	}
	d.logger.Info("EGL vendor override reverted", "path", d.config.EGLVendorPath)
}

// forceOff unloads the driver and removes the GPU regardless of what the
// previous daemon left behind.
func (d *daemon) forceOff(ctx context.Context) {
	d.journal.Begin(journal.TransitionOff, 0)
	failures := d.engine.UnloadModules(ctx)
	failures += d.engine.PowerOff(ctx)
	d.journal.Done()
	if failures > 0 {
		d.logger.Warn("boot power off finished with failures", "failures", failures)
		return
	}
	d.logger.Info("boot power off finished")
}
