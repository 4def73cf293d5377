package state

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// fanout — bounded subscriber queues
// ─────────────────────────────────────────────────────────────────────────────

// subscriber is one registered consumer: a bounded channel plus the
// collection filter ("" = all).
type subscriber struct {
	collection string
	ch         chan models.UpdateEvent
}

// fanout delivers update events to subscribers without ever blocking the
// publisher. Each subscriber has a bounded queue; on overflow the newest
// event is dropped and counted.
type fanout struct {
	buffer int
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	dropCnt atomic.Uint64
}

func newFanout(buffer int, logger *slog.Logger) *fanout {
	if buffer <= 0 {
		buffer = 64
	}
	return &fanout{
		buffer: buffer,
		logger: logger,
		subs:   make(map[int]*subscriber),
	}
}

func (f *fanout) subscribe(collection string) (<-chan models.UpdateEvent, func()) {
	sub := &subscriber{
		collection: collection,
		ch:         make(chan models.UpdateEvent, f.buffer),
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub.ch)
		}
		f.mu.Unlock()
	}
	return sub.ch, cancel
}

// publish delivers ev to every matching subscriber. Never blocks: a full
// queue drops this (newest) event for that subscriber.
func (f *fanout) publish(ev models.UpdateEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.collection != "" && sub.collection != ev.Collection {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			f.dropCnt.Add(1)
			f.logger.Warn("subscriber queue full, event dropped",
				"collection", ev.Collection,
				"sequence", ev.Sequence,
			)
		}
	}
}

func (f *fanout) dropped() uint64 { return f.dropCnt.Load() }
