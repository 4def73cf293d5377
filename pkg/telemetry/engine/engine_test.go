package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/config"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/drivers"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/engine"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/parse"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/state"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/templates"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

// fakeChannel replays canned output per command and can be switched into a
// failing mode to simulate transport loss.
type fakeChannel struct {
	mu       sync.Mutex
	outputs  map[string]string
	calls    []string
	failing  bool
	closed   bool
	hostname string
}

func (c *fakeChannel) Run(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, command)
	if c.failing {
		return "", errors.New("connection reset by peer")
	}
	return c.outputs[command], nil
}

func (c *fakeChannel) Prompt() string   { return "router1#" }
func (c *fakeChannel) Hostname() string { return c.hostname }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) setFailing(v bool) {
	c.mu.Lock()
	c.failing = v
	c.mu.Unlock()
}

func (c *fakeChannel) callCount(command string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == command {
			n++
		}
	}
	return n
}

// fakeDialer hands out channels and can be told to fail the next N dials.
type fakeDialer struct {
	mu        sync.Mutex
	channels  []*fakeChannel
	failNext  int
	dialCount int
}

func (d *fakeDialer) Dial(ctx context.Context) (engine.CommandChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialCount++
	if d.failNext > 0 {
		d.failNext--
		return nil, errors.New("dial refused")
	}
	ch := &fakeChannel{
		hostname: "router1",
		outputs: map[string]string{
			"show version": "show version\nCisco IOS XE Software, Version 17.03.04\nrouter1#",
			"show processes cpu sorted": "show processes cpu sorted\n" +
				"CPU utilization for five seconds: 13%/2%; one minute: 11%; five minutes: 10%\n" +
				"router1#",
			"show health": "show health\nvalue 42\nrouter1#",
		},
	}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) current() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount
}

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

const cpuYAML = `command: show processes cpu sorted
interval: 30
parsers:
  - type: regex
    pattern: 'five seconds: (\d+)%(?:/\d+%)?; one minute: (\d+)%; five minutes: (\d+)%'
    groups:
      five_sec_total: 1
      one_min: 2
      five_min: 3
`

const versionYAML = `command: show version
interval: 0
parsers:
  - type: regex
    pattern: 'Version (\S+)'
    groups:
      version: 1
`

type harness struct {
	eng    *engine.Engine
	dialer *fakeDialer
	store  *state.Store
	traces *trace.Store
	clock  *clockwork.FakeClock
	events []models.ConnectionEvent
	evMu   sync.Mutex

	done chan error
}

func newHarness(t *testing.T, collections map[string]string) *harness {
	t.Helper()

	dir := t.TempDir()
	for rel, content := range collections {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	reg, err := config.Load(dir, "cisco_ios_xe", nil)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	h := &harness{
		dialer: &fakeDialer{},
		store:  state.New(state.Options{Clock: clock}, nil),
		traces: trace.NewStore(20),
		clock:  clock,
		done:   make(chan error, 1),
	}

	resolver := templates.NewResolver(filepath.Join(dir, "templates"), "", nil)
	h.eng, err = engine.New(engine.Config{
		Target:   models.DeviceTarget{Host: "10.0.0.1", Vendor: "cisco_ios_xe"},
		Dialer:   h.dialer,
		Registry: reg,
		Driver:   drivers.Lookup("cisco_ios_xe"),
		Chain:    parse.NewChain(resolver, nil),
		Store:    h.store,
		Traces:   h.traces,
		Clock:    clock,
		OnConnectionEvent: func(ev models.ConnectionEvent) {
			h.evMu.Lock()
			h.events = append(h.events, ev)
			h.evMu.Unlock()
		},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) start(ctx context.Context) {
	go func() { h.done <- h.eng.Run(ctx) }()
}

func (h *harness) connStates() []models.ConnectionState {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	states := make([]models.ConnectionState, len(h.events))
	for i, ev := range h.events {
		states[i] = ev.State
	}
	return states
}

// waitSleep blocks until the engine is parked in its scheduler sleep.
func (h *harness) waitSleep() { h.clock.BlockUntil(1) }

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestEngineStartupAndSchedule(t *testing.T) {
	h := newHarness(t, map[string]string{
		"cpu/cisco_ios.yaml":         cpuYAML,
		"device_info/cisco_ios.yaml": versionYAML,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.start(ctx)
	h.waitSleep()

	ch := h.dialer.current()
	require.NotNil(t, ch)

	// Pagination issued once, one-shot ran once, cpu ran its first cycle.
	assert.Equal(t, 1, ch.callCount("terminal length 0"))
	assert.Equal(t, 1, ch.callCount("show version"))
	assert.Equal(t, 1, ch.callCount("show processes cpu sorted"))

	// Device identity seeded from the channel.
	assert.Equal(t, "router1", h.store.DeviceInfo().Hostname)
	assert.Equal(t, "router1#", h.store.DeviceInfo().Prompt)

	// The published cpu envelope carries the parsed headline, forced numeric
	// by the driver.
	cpu := h.store.Get("cpu")
	require.NotNil(t, cpu)
	assert.Equal(t, 13.0, cpu["five_sec_total"])

	// One trace per fired collection.
	assert.Len(t, h.traces.Recent("cpu", 0), 1)
	assert.Len(t, h.traces.Recent("device_info", 0), 1)

	// Next cycle: only cpu re-fires; the one-shot never does.
	h.clock.Advance(30 * time.Second)
	h.waitSleep()
	assert.Equal(t, 2, ch.callCount("show processes cpu sorted"))
	assert.Equal(t, 1, ch.callCount("show version"))
	assert.Equal(t, uint64(1), h.store.Sequence("device_info"))

	cancel()
	<-h.done
}

func TestEngineSchemaCoercionViaRegistry(t *testing.T) {
	// An unknown collection: no driver transform touches it, so the schema
	// coercion is directly observable on the published rows, wrapped under
	// the generic "data" key.
	h := newHarness(t, map[string]string{
		"health/cisco_ios.yaml": `command: show health
parsers:
  - type: regex
    pattern: 'value (\d+)'
    groups:
      value: 1
`,
		"health/_schema.yaml": `fields:
  value:
    type: int
`,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.start(ctx)
	h.waitSleep()

	env := h.store.Get("health")
	require.NotNil(t, env)
	rows := env.Rows("data")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0]["value"])

	cancel()
	<-h.done
}

// All parsers fail: an error envelope is published, the previous good
// envelope is retained, and the trace shows parsed_by none.
func TestEngineAllParsersFailedPublishesErrorEnvelope(t *testing.T) {
	h := newHarness(t, map[string]string{"cpu/cisco_ios.yaml": cpuYAML})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.start(ctx)
	h.waitSleep()
	require.NotNil(t, h.store.Get("cpu")) // first cycle succeeded

	// Device starts rejecting the command syntax.
	ch := h.dialer.current()
	ch.mu.Lock()
	ch.outputs["show processes cpu sorted"] = "% Invalid input detected at '^' marker.\nrouter1#"
	ch.mu.Unlock()

	h.clock.Advance(30 * time.Second)
	h.waitSleep()

	errEnv := h.store.LastError("cpu")
	require.NotNil(t, errEnv)
	assert.Contains(t, errEnv["error"], "AllParsersFailed")
	assert.Equal(t, "cpu", errEnv["_collection"])

	// Prior good envelope still readable.
	assert.Equal(t, 13.0, h.store.Get("cpu")["five_sec_total"])

	traces := h.traces.Recent("cpu", 0)
	last := traces[len(traces)-1]
	require.NotNil(t, last.Outcome)
	assert.Equal(t, "none", last.Outcome.ParsedBy)

	cancel()
	<-h.done
}

// Three consecutive transport failures trigger reconnect backoff (3s, 6s,
// 12s, ...); on success the pagination command is re-issued and polling
// resumes.
func TestEngineReconnectAfterTransportFailures(t *testing.T) {
	h := newHarness(t, map[string]string{"cpu/cisco_ios.yaml": cpuYAML})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.start(ctx)
	h.waitSleep()

	first := h.dialer.current()
	first.setFailing(true)

	// Two failing dials before the third attempt succeeds.
	h.dialer.mu.Lock()
	h.dialer.failNext = 2
	h.dialer.mu.Unlock()

	// Three failing cycles, 30s apart.
	for i := 0; i < 2; i++ {
		h.clock.Advance(30 * time.Second)
		h.waitSleep()
	}
	// Third failure happens inside this cycle and rolls straight into the
	// reconnect backoff sleep (3s).
	h.clock.Advance(30 * time.Second)
	h.waitSleep()
	assert.Contains(t, h.connStates(), models.ConnReconnecting)

	h.clock.Advance(3 * time.Second) // attempt 1: dial refused
	h.waitSleep()
	h.clock.Advance(6 * time.Second) // attempt 2: dial refused
	h.waitSleep()
	h.clock.Advance(12 * time.Second) // attempt 3: succeeds
	h.waitSleep()

	require.Equal(t, 4, h.dialer.dials()) // initial + 3 reconnect attempts

	second := h.dialer.current()
	require.NotSame(t, first, second)
	assert.Equal(t, 1, second.callCount("terminal length 0"))
	assert.True(t, first.closed)

	states := h.connStates()
	assert.Equal(t, models.ConnConnected, states[0])
	assert.Contains(t, states, models.ConnReconnecting)
	assert.Equal(t, models.ConnConnected, states[len(states)-1])

	// Polling resumes on the new channel.
	h.clock.Advance(30 * time.Second)
	h.waitSleep()
	assert.GreaterOrEqual(t, second.callCount("show processes cpu sorted"), 1)

	cancel()
	<-h.done
}

func TestEngineClearsStoreOnExit(t *testing.T) {
	h := newHarness(t, map[string]string{"cpu/cisco_ios.yaml": cpuYAML})
	ctx, cancel := context.WithCancel(context.Background())

	h.start(ctx)
	h.waitSleep()
	require.NotNil(t, h.store.Get("cpu"))

	cancel()
	<-h.done
	assert.Nil(t, h.store.Get("cpu"))
}

func TestEngineConfigValidation(t *testing.T) {
	_, err := engine.New(engine.Config{})
	require.Error(t, err)
}
