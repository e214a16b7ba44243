package persist

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

// Writer serializes all Store I/O onto one goroutine.
//
// Saves are coalesced: if several snapshots are submitted while a write is in
// progress only the newest is written next. Each snapshot is the full list, so
// skipping intermediate ones never loses state.
type Writer struct {
	store  Store
	logger *zap.Logger

	loads chan chan []models.Event
	wake  chan struct{}
	quit  chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	pending   []models.Event
	dirty     bool
	closed    bool
	submitted uint64
	written   uint64
	progress  chan struct{} // closed and replaced after every write
}

// NewWriter starts the I/O goroutine for store.
func NewWriter(store Store, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{
		store:    store,
		logger:   logger,
		loads:    make(chan chan []models.Event),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		progress: make(chan struct{}),
	}
	go w.run()
	return w
}

// LoadAsync reads the stored list on the I/O goroutine. The returned channel
// yields exactly one list, empty when the store is missing, unreadable or
// corrupt.
func (w *Writer) LoadAsync() <-chan []models.Event {
	reply := make(chan []models.Event, 1)
	go func() {
		select {
		case w.loads <- reply:
		case <-w.done:
			reply <- []models.Event{}
		}
	}()
	return reply
}

// SaveAll schedules events to replace the stored list. The Writer takes
// ownership of the slice. It never blocks on disk.
func (w *Writer) SaveAll(events []models.Event) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Debug("event store closed, dropping snapshot", zap.Int("events", len(events)))
		return
	}
	w.pending = events
	w.dirty = true
	w.submitted++
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Sync blocks until every snapshot submitted before the call has been written.
func (w *Writer) Sync(ctx context.Context) error {
	w.mu.Lock()
	target := w.submitted
	w.mu.Unlock()

	for {
		w.mu.Lock()
		written, progress := w.written, w.progress
		w.mu.Unlock()

		if written >= target {
			return nil
		}

		select {
		case <-progress:
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close writes any pending snapshot and stops the I/O goroutine.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.quit)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.done)

	for {
		select {
		case reply := <-w.loads:
			reply <- w.load()
		case <-w.wake:
			w.flush()
		case <-w.quit:
			w.flush()
			return
		}
	}
}

func (w *Writer) load() []models.Event {
	events, err := w.store.Load()
	if err != nil {
		w.logger.Warn("event store unreadable, starting with an empty queue", zap.Error(err))
		return []models.Event{}
	}
	if events == nil {
		events = []models.Event{}
	}
	return events
}

func (w *Writer) flush() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	events, seq := w.pending, w.submitted
	w.pending, w.dirty = nil, false
	w.mu.Unlock()

	if err := w.store.SaveAll(events); err != nil {
		w.logger.Error("persist events", zap.Int("events", len(events)), zap.Error(err))
	}

	w.mu.Lock()
	w.written = seq
	close(w.progress)
	w.progress = make(chan struct{})
	w.mu.Unlock()
}
