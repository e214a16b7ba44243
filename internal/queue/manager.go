// Package queue owns the in-memory list of events awaiting delivery.
//
// Every operation runs on a single goroutine in submission order, so the list
// needs no lock: the goroutine is the only code that ever touches it. After
// each mutation the full list is handed to the persister, which writes it on
// its own goroutine.
package queue

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

// ErrClosed is returned by reads issued after Close.
var ErrClosed = errors.New("event queue closed")

const opsBuffer = 256

// Persister is the asynchronous durable store the manager mirrors into.
type Persister interface {
	LoadAsync() <-chan []models.Event
	SaveAll(events []models.Event)
}

// Manager is the queue serial domain.
type Manager struct {
	store  Persister
	logger *zap.Logger

	ops       chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	items    []models.Event
	hydrated bool
}

// New starts the manager goroutine. Nothing is persisted until Load has
// hydrated the list from store.
func New(store Persister, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		store:  store,
		logger: logger,
		ops:    make(chan func(), opsBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Load hydrates the list from the persister. The returned channel is closed
// once the loaded events are visible to subsequent operations.
//
// Events added before hydration finishes are kept and ordered after the
// loaded ones.
func (m *Manager) Load() <-chan struct{} {
	hydrated := make(chan struct{})
	loaded := m.store.LoadAsync()

	go func() {
		var events []models.Event
		select {
		case events = <-loaded:
		case <-m.done:
			close(hydrated)
			return
		}

		ok := m.submit(func() {
			m.hydrate(events)
			close(hydrated)
		})
		if !ok {
			close(hydrated)
		}
	}()

	return hydrated
}

// Add appends e. An id already in the queue is ignored.
func (m *Manager) Add(e models.Event) {
	m.submitOrDrop("add", e.ID, func() {
		if m.index(e.ID) >= 0 {
			m.logger.Debug("event already queued", zap.Stringer("event_id", e.ID))
			return
		}
		m.items = append(m.items, e)
		m.persist()
	})
}

// MarkSuccess removes the event with id. Absent ids are ignored.
func (m *Manager) MarkSuccess(id uuid.UUID) {
	m.submitOrDrop("mark success", id, func() {
		i := m.index(id)
		if i < 0 {
			return
		}
		m.items = slices.Delete(m.items, i, i+1)
		m.persist()
	})
}

// MarkRetry increments the attempt counter of the event with id. Absent ids
// are ignored.
func (m *Manager) MarkRetry(id uuid.UUID) {
	m.submitOrDrop("mark retry", id, func() {
		i := m.index(id)
		if i < 0 {
			return
		}
		m.items[i].Attempts++
		m.persist()
	})
}

// Snapshot returns a copy of the queue as of every operation submitted
// before it.
func (m *Manager) Snapshot(ctx context.Context) ([]models.Event, error) {
	return request(ctx, m, func() []models.Event {
		return slices.Clone(m.items)
	})
}

// Get returns the current state of the event with id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (models.Event, bool, error) {
	type result struct {
		e  models.Event
		ok bool
	}

	r, err := request(ctx, m, func() result {
		if i := m.index(id); i >= 0 {
			return result{e: m.items[i], ok: true}
		}
		return result{}
	})
	return r.e, r.ok, err
}

// Len returns the number of queued events.
func (m *Manager) Len(ctx context.Context) (int, error) {
	return request(ctx, m, func() int { return len(m.items) })
}

// Close runs every operation already submitted and stops the goroutine.
// Later mutations are dropped and reads fail with ErrClosed.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Manager) run() {
	defer close(m.done)

	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.stop:
			for {
				select {
				case op := <-m.ops:
					op()
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) submit(op func()) bool {
	select {
	case <-m.stop:
		return false
	default:
	}

	select {
	case m.ops <- op:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) submitOrDrop(what string, id uuid.UUID, op func()) {
	if !m.submit(op) {
		m.logger.Debug("event queue closed, dropping "+what, zap.Stringer("event_id", id))
	}
}

func request[T any](ctx context.Context, m *Manager, read func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)

	if !m.submit(func() { reply <- read() }) {
		return zero, ErrClosed
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.done:
		// The op may have run just before the goroutine exited.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

func (m *Manager) index(id uuid.UUID) int {
	return slices.IndexFunc(m.items, func(e models.Event) bool { return e.ID == id })
}

// hydrate merges loaded with anything added before hydration. For an id
// present in both, the in-memory copy wins since its attempt count can only
// be equal or higher.
func (m *Manager) hydrate(loaded []models.Event) {
	current := make(map[uuid.UUID]models.Event, len(m.items))
	for _, e := range m.items {
		current[e.ID] = e
	}

	merged := make([]models.Event, 0, len(loaded)+len(m.items))
	seen := make(map[uuid.UUID]struct{}, len(loaded)+len(m.items))

	for _, e := range loaded {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		if mem, ok := current[e.ID]; ok {
			e = mem
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range m.items {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}

	m.items = merged
	m.hydrated = true
	m.logger.Debug("event queue hydrated", zap.Int("loaded", len(loaded)), zap.Int("events", len(merged)))
	m.persist()
}

func (m *Manager) persist() {
	if !m.hydrated {
		return
	}
	m.store.SaveAll(slices.Clone(m.items))
}
