// Package state is the in-memory normalized device model: the single source
// of truth for one device session. The poll engine is the only writer;
// subscribers and history queries read. Envelopes are treated as immutable
// once published, so readers always observe a consistent value.
package state

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scottpeterman/wirlwind/models"
)

// entry is the per-collection record: latest good envelope, latest error
// marker, and the event sequence counter.
type entry struct {
	latest      models.Envelope // last successful envelope, nil until first success
	lastError   models.Envelope // last error envelope, nil when last cycle succeeded
	lastErrorAt time.Time
	updatedAt   time.Time
	seq         uint64
	updates     uint64 // successful updates; prunes per-row series via grace window
}

// perRowSeries tracks one lazily created per-row ring plus the update count
// at which its row was last sighted.
type perRowSeries struct {
	ring     *Ring
	lastSeen uint64
}

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

// Store holds the latest envelope per collection, per-series ring buffers,
// and the subscriber fanout. Single writer (the poll engine), many readers.
type Store struct {
	clock       clockwork.Clock
	logger      *slog.Logger
	graceCycles uint64

	mu         sync.RWMutex
	entries    map[string]*entry
	deviceInfo models.DeviceInfo

	// Series tracking.
	flatSpecs map[string][]SeriesSpec // collection → flat specs
	rowSpecs  map[string][]SeriesSpec // collection → per-row specs
	flat      map[string]*Ring        // series key → ring
	perRow    map[string]*perRowSeries

	subs *fanout
}

// Options configures a Store. Zero values fall back to documented defaults.
type Options struct {
	// Series declares the numeric time series to track.
	// Nil = DefaultSeries().
	Series []SeriesSpec

	// GraceCycles is how many updates an unseen per-row series survives.
	// 0 = DefaultGraceCycles.
	GraceCycles int

	// SubscriberBuffer is each subscriber's queue capacity. 0 = 64.
	SubscriberBuffer int

	// Clock supplies sample timestamps. Nil = real clock.
	Clock clockwork.Clock
}

// New creates a Store.
func New(opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Series == nil {
		opts.Series = DefaultSeries()
	}
	if opts.GraceCycles <= 0 {
		opts.GraceCycles = DefaultGraceCycles
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Store{
		clock:       opts.Clock,
		logger:      logger,
		graceCycles: uint64(opts.GraceCycles),
		entries:     make(map[string]*entry),
		flatSpecs:   make(map[string][]SeriesSpec),
		rowSpecs:    make(map[string][]SeriesSpec),
		flat:        make(map[string]*Ring),
		perRow:      make(map[string]*perRowSeries),
		subs:        newFanout(opts.SubscriberBuffer, logger),
	}
	for _, spec := range opts.Series {
		if spec.ListKey == "" {
			s.flatSpecs[spec.Collection] = append(s.flatSpecs[spec.Collection], spec)
		} else {
			s.rowSpecs[spec.Collection] = append(s.rowSpecs[spec.Collection], spec)
		}
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes (poll engine only)
// ─────────────────────────────────────────────────────────────────────────────

// PutMeta carries parse provenance into the published event.
type PutMeta struct {
	ParsedBy string
	Template string
}

// Put replaces the latest envelope for a collection, increments the sequence
// number, appends numeric extractions to the configured ring buffers, and
// emits an update event. An error envelope (per models.ErrorEnvelope) is
// recorded as the latest error marker without displacing the previous good
// envelope; it still consumes a sequence number so consumers see a total
// order per collection.
func (s *Store) Put(collection string, env models.Envelope, meta PutMeta) {
	now := s.clock.Now()

	s.mu.Lock()
	e := s.entries[collection]
	if e == nil {
		e = &entry{}
		s.entries[collection] = e
	}
	e.seq++
	seq := e.seq

	var errText string
	if env.IsError() {
		e.lastError = env
		e.lastErrorAt = now
		errText, _ = env["error"].(string)
	} else {
		e.latest = env
		e.lastError = nil
		e.updatedAt = now
		e.updates++
		s.extractSeries(collection, env, e.updates, now)
	}
	s.mu.Unlock()

	s.subs.publish(models.UpdateEvent{
		Collection: collection,
		Envelope:   env,
		Sequence:   seq,
		ParsedBy:   meta.ParsedBy,
		Template:   meta.Template,
		Error:      errText,
	})
	s.logger.Debug("state updated", "collection", collection, "sequence", seq, "error", errText != "")
}

// SetDeviceInfo records static device identity detected at connect time.
func (s *Store) SetDeviceInfo(info models.DeviceInfo) {
	s.mu.Lock()
	s.deviceInfo = info
	s.mu.Unlock()
	s.logger.Info("device info set", "hostname", info.Hostname, "vendor", info.Vendor)
}

// Clear resets all state. Called on disconnect; the store lives for the
// session only.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.flat = make(map[string]*Ring)
	s.perRow = make(map[string]*perRowSeries)
	s.deviceInfo = models.DeviceInfo{}
	s.mu.Unlock()
	s.logger.Info("state store cleared")
}

// extractSeries appends numeric samples for every configured series of the
// collection. Caller holds the write lock.
func (s *Store) extractSeries(collection string, env models.Envelope, updates uint64, now time.Time) {
	for _, spec := range s.flatSpecs[collection] {
		if v, ok := numericValue(env[spec.Field]); ok {
			key := seriesKey(spec, "")
			ring := s.flat[key]
			if ring == nil {
				ring = NewRing(spec.Capacity)
				s.flat[key] = ring
			}
			ring.Append(now, v)
		}
	}

	for _, spec := range s.rowSpecs[collection] {
		for _, row := range env.Rows(spec.ListKey) {
			id := rowIdentity(row, spec.KeyField)
			if id == "" {
				continue
			}
			v, ok := numericValue(row[spec.Field])
			if !ok {
				continue
			}
			key := seriesKey(spec, id)
			ps := s.perRow[key]
			if ps == nil {
				ps = &perRowSeries{ring: NewRing(spec.Capacity)}
				s.perRow[key] = ps
				s.logger.Debug("series created", "series", key)
			}
			ps.ring.Append(now, v)
			ps.lastSeen = updates
		}

		// Grace window: drop this collection's buffers for rows unseen too
		// long. The update counter is per collection, so only keys under
		// this collection's prefix may be judged against it.
		prefix := collection + "."
		for key, ps := range s.perRow {
			if strings.HasPrefix(key, prefix) && ps.lastSeen+s.graceCycles < updates {
				delete(s.perRow, key)
				s.logger.Debug("series expired", "series", key)
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the latest successful envelope for a collection, or nil.
func (s *Store) Get(collection string) models.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.entries[collection]; e != nil {
		return e.latest
	}
	return nil
}

// LastError returns the latest error envelope for a collection, or nil when
// the most recent cycle succeeded.
func (s *Store) LastError(collection string) models.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.entries[collection]; e != nil {
		return e.lastError
	}
	return nil
}

// Sequence returns the current event sequence number for a collection.
func (s *Store) Sequence(collection string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.entries[collection]; e != nil {
		return e.seq
	}
	return 0
}

// History returns the ring buffer contents for a series key (see seriesKey
// naming in series.go), oldest first. Unknown series yield nil.
func (s *Store) History(collection, series string) []models.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := collection + "." + series
	if ring := s.flat[key]; ring != nil {
		return ring.Samples()
	}
	if ps := s.perRow[key]; ps != nil {
		return ps.ring.Samples()
	}
	return nil
}

// SeriesKeys lists every live series key, for diagnostic surfaces.
func (s *Store) SeriesKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.flat)+len(s.perRow))
	for k := range s.flat {
		keys = append(keys, k)
	}
	for k := range s.perRow {
		keys = append(keys, k)
	}
	return keys
}

// DeviceInfo returns the static device identity.
func (s *Store) DeviceInfo() models.DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceInfo
}

// Snapshot is the full state view for a front-end bridge.
type Snapshot struct {
	Device      models.DeviceInfo          `json:"device"`
	Collections map[string]models.Envelope `json:"collections"`
	Errors      map[string]models.Envelope `json:"errors,omitempty"`
	SnapshotAt  time.Time                  `json:"snapshot_time"`
}

// TakeSnapshot returns the complete current state.
func (s *Store) TakeSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Device:      s.deviceInfo,
		Collections: make(map[string]models.Envelope, len(s.entries)),
		Errors:      make(map[string]models.Envelope),
		SnapshotAt:  s.clock.Now(),
	}
	for name, e := range s.entries {
		if e.latest != nil {
			snap.Collections[name] = e.latest
		}
		if e.lastError != nil {
			snap.Errors[name] = e.lastError
		}
	}
	return snap
}

// Subscribe registers a consumer for one collection's update events ("" for
// all collections). Delivery is in sequence order, at-most-once; a slow
// subscriber's overflow drops the newest event rather than blocking the
// engine. The returned cancel func releases the subscription.
func (s *Store) Subscribe(collection string) (<-chan models.UpdateEvent, func()) {
	return s.subs.subscribe(collection)
}

// DroppedEvents reports how many events were dropped across all subscribers.
func (s *Store) DroppedEvents() uint64 { return s.subs.dropped() }

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
