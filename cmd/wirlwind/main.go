// Command wirlwind is the per-device telemetry console core.
//
// It opens an SSH session to a single device, polls vendor CLI commands on
// their configured intervals, parses the output through the template-driven
// parser chain, and publishes typed envelope updates for a rendering
// front-end.
//
// Usage:
//
//	wirlwind --host 10.0.0.1 --vendor cisco_ios_xe --user admin
//	wirlwind --host sw1.lab --vendor arista_eos --user admin --key ~/.ssh/id_rsa
//	wirlwind --vendor juniper_junos --preflight-only
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	fmtjson "github.com/scottpeterman/wirlwind/format/json"
	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/config"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/drivers"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/engine"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/parse"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/state"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/templates"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
	"github.com/scottpeterman/wirlwind/transport/sshchannel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wirlwind: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		host     = flag.String("host", "", "Device hostname or IP")
		port     = flag.Int("port", 22, "SSH port")
		vendor   = flag.String("vendor", "", "Vendor identifier (e.g. cisco_ios_xe, arista_eos, juniper_junos)")
		user     = flag.String("user", "", "SSH username")
		password = flag.String("password", "", "SSH password (prompts when neither password nor key given)")
		keyPath  = flag.String("key", "", "Path to SSH private key")
		name     = flag.String("name", "", "Display name for the device")

		collectionsDir = flag.String("collections", "collections", "Collection definitions directory")
		templatesDir   = flag.String("templates", "templates", "Local template override directory")
		systemDir      = flag.String("system-templates", templates.DefaultSystemDir(), "System template directory")

		cmdTimeout = flag.Duration("command-timeout", 15*time.Second, "Per-command read timeout")

		debug         = flag.Bool("debug", false, "Elevate parse-trace verbosity")
		preflightOnly = flag.Bool("preflight-only", false, "Resolve all templates and exit without connecting")
		noLegacy      = flag.Bool("no-legacy", false, "Disable legacy SSH cipher support")
		emitEvents    = flag.Bool("emit-events", false, "Write update events as JSON lines to stdout")
	)
	flag.Parse()

	logger := buildLogger(*debug)

	if *vendor == "" {
		return fmt.Errorf("--vendor is required")
	}

	// ── Collections + templates ──────────────────────────────────────────
	reg, err := config.Load(*collectionsDir, *vendor, logger)
	if err != nil {
		return err
	}
	resolver := templates.NewResolver(*templatesDir, *systemDir, logger)

	if *preflightOnly {
		return engine.Preflight(reg, resolver, *collectionsDir, os.Stdout)
	}

	if *host == "" || *user == "" {
		return fmt.Errorf("--host and --user are required")
	}

	// ── Authentication material ──────────────────────────────────────────
	pass := *password
	if pass == "" && *keyPath == "" {
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", *user, *host)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		pass = string(raw)
	}

	// ── Wire the session ─────────────────────────────────────────────────
	target := models.DeviceTarget{
		Host:        *host,
		Port:        *port,
		Vendor:      *vendor,
		DisplayName: *name,
	}
	if target.DisplayName == "" {
		target.DisplayName = *host
	}

	sshCfg := sshchannel.Config{
		Host:           *host,
		Port:           *port,
		Username:       *user,
		Password:       pass,
		KeyPath:        *keyPath,
		LegacyMode:     !*noLegacy,
		CommandTimeout: *cmdTimeout,
		Logger:         logger,
	}

	store := state.New(state.Options{}, logger)
	traces := trace.NewStore(0)
	driver := drivers.Lookup(*vendor)
	chain := parse.NewChain(resolver, logger)

	eng, err := engine.New(engine.Config{
		Target: target,
		Dialer: engine.DialerFunc(func(ctx context.Context) (engine.CommandChannel, error) {
			return sshchannel.Dial(ctx, sshCfg)
		}),
		Registry: reg,
		Driver:   driver,
		Chain:    chain,
		Store:    store,
		Traces:   traces,
		Logger:   logger,
		OnConnectionEvent: func(ev models.ConnectionEvent) {
			logger.Info("session", "state", string(ev.State), "detail", ev.Detail)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional event tap: the same stream a front-end bridge would consume,
	// one JSON event per line.
	if *emitEvents {
		events, cancel := store.Subscribe("")
		defer cancel()
		formatter := fmtjson.New(fmtjson.Config{}, logger)
		go func() {
			for ev := range events {
				if data, err := formatter.Format(&ev); err == nil {
					fmt.Fprintf(os.Stdout, "%s\n", data)
				}
			}
		}()
	}

	logger.Info("starting session",
		"target", target.DisplayName,
		"vendor", *vendor,
		"driver", driver.Vendor(),
		"collections", len(reg.Definitions()),
	)

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("session ended")
	return nil
}

// buildLogger constructs the tinted stderr logger; --debug elevates the
// level so full parse traces appear.
func buildLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))
}
