package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/config"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/drivers"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/parse"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/state"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

const (
	// DefaultFailureThreshold is how many consecutive transport failures
	// (across all collections) trigger reconnect backoff.
	DefaultFailureThreshold = 3

	reconnectInitial = 3 * time.Second
	reconnectMax     = 60 * time.Second
)

// Config wires an Engine. Required fields are validated by Validate.
type Config struct {
	Target   models.DeviceTarget
	Dialer   Dialer
	Registry *config.Registry
	Driver   drivers.Driver
	Chain    *parse.Chain
	Store    *state.Store
	Traces   *trace.Store

	// Clock drives scheduling and backoff. Nil = real clock.
	Clock clockwork.Clock

	// FailureThreshold overrides DefaultFailureThreshold when > 0.
	FailureThreshold int

	// OnConnectionEvent, when non-nil, receives session state changes.
	OnConnectionEvent func(models.ConnectionEvent)

	Logger *slog.Logger
}

// Validate rejects configs the engine cannot run with.
func (c *Config) Validate() error {
	if c.Dialer == nil {
		return errors.New("dialer is required")
	}
	if c.Registry == nil {
		return errors.New("collection registry is required")
	}
	if c.Driver == nil {
		return errors.New("vendor driver is required")
	}
	if c.Chain == nil {
		return errors.New("parser chain is required")
	}
	if c.Store == nil {
		return errors.New("state store is required")
	}
	if c.Traces == nil {
		return errors.New("trace store is required")
	}
	return nil
}

// collEntry tracks next-fire time for one scheduled collection.
type collEntry struct {
	def     *models.CollectionDefinition
	nextRun time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

// Engine is the single cooperative scheduler for one device session. All
// pipelines run on the one goroutine that calls Run; the SSH channel is
// owned exclusively and commands are serialized in cycle order.
type Engine struct {
	cfg       Config
	clock     clockwork.Clock
	logger    *slog.Logger
	threshold int

	channel CommandChannel
	entries []collEntry

	// consecutive transport failures across all collections
	transportFails int
}

// New creates an Engine. Call Run to start polling.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Engine{
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		threshold: threshold,
	}, nil
}

// Run connects and polls until ctx is cancelled; it returns early only when
// the initial connection fails. Lost connections are redialed by reconnect,
// which keeps retrying until cancellation. The state store is cleared on exit.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if e.channel != nil {
			_ = e.channel.Close()
			e.channel = nil
		}
		e.emitConn(models.ConnDisconnected, "")
		e.cfg.Store.Clear()
	}()

	ch, err := e.cfg.Dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", e.cfg.Target.Host, err)
	}
	e.channel = ch
	e.afterConnect(ctx)
	e.emitConn(models.ConnConnected, "")

	// One-shot collections run once at startup, in definition order, then
	// drop out of the ready set for the rest of the session.
	now := e.clock.Now()
	for _, def := range e.cfg.Registry.Definitions() {
		if def.OneShot() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.pollCollection(ctx, def)
			continue
		}
		e.entries = append(e.entries, collEntry{def: def, nextRun: now})
	}

	return e.loop(ctx)
}

// afterConnect seeds device identity and disables pagination. Pagination
// output is ignored.
func (e *Engine) afterConnect(ctx context.Context) {
	e.cfg.Store.SetDeviceInfo(models.DeviceInfo{
		Hostname: e.channel.Hostname(),
		Prompt:   e.channel.Prompt(),
		Vendor:   e.cfg.Target.Vendor,
	})
	if cmd := e.cfg.Driver.PaginationCommand(); cmd != "" {
		if _, err := e.channel.Run(ctx, cmd); err != nil {
			e.logger.Warn("pagination command failed", "command", cmd, "error", err.Error())
		}
	}
}

// loop is the main scheduler: fire every due collection in definition order,
// then sleep until the earliest next-fire time or cancellation.
func (e *Engine) loop(ctx context.Context) error {
	if len(e.entries) == 0 {
		e.logger.Info("no recurring collections; idling until cancellation")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		now := e.clock.Now()
		for i := range e.entries {
			entry := &e.entries[i]
			if entry.nextRun.After(now) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			transportErr := e.pollCollection(ctx, entry.def)
			// Failures do not accelerate retries.
			entry.nextRun = now.Add(time.Duration(entry.def.Interval) * time.Second)

			if transportErr {
				e.transportFails++
				if e.transportFails >= e.threshold {
					if err := e.reconnect(ctx); err != nil {
						return err
					}
				}
			} else {
				e.transportFails = 0
			}
		}

		earliest := e.entries[0].nextRun
		for _, entry := range e.entries[1:] {
			if entry.nextRun.Before(earliest) {
				earliest = entry.nextRun
			}
		}
		delay := earliest.Sub(e.clock.Now())
		if delay < 0 {
			delay = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clock.After(delay):
		}
	}
}

// reconnect closes the dead channel and redials with exponential backoff
// (3s, 6s, 12s, ... capped at 60s). On success the pagination command is
// re-issued and the loop resumes.
func (e *Engine) reconnect(ctx context.Context) error {
	e.emitConn(models.ConnReconnecting, fmt.Sprintf("%d consecutive transport failures", e.transportFails))
	if e.channel != nil {
		_ = e.channel.Close()
		e.channel = nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectInitial
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = reconnectMax
	bo.MaxElapsedTime = 0 // retry until cancelled
	bo.Reset()

	for attempt := 1; ; attempt++ {
		wait := bo.NextBackOff()
		e.logger.Info("reconnect backoff", "attempt", attempt, "wait", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clock.After(wait):
		}

		ch, err := e.cfg.Dialer.Dial(ctx)
		if err != nil {
			e.logger.Warn("reconnect failed", "attempt", attempt, "error", err.Error())
			continue
		}

		e.channel = ch
		e.transportFails = 0
		e.afterConnect(ctx)
		e.emitConn(models.ConnConnected, fmt.Sprintf("reconnected after %d attempt(s)", attempt))
		return nil
	}
}

func (e *Engine) emitConn(s models.ConnectionState, detail string) {
	e.logger.Info("connection state", "state", string(s), "detail", detail)
	if e.cfg.OnConnectionEvent != nil {
		e.cfg.OnConnectionEvent(models.ConnectionEvent{State: s, Detail: detail, At: e.clock.Now()})
	}
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
