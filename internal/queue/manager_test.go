package queue

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
	"github.com/PratikDhanave/event-analytics-sdk/internal/persist"
)

// recordingPersister captures every snapshot synchronously.
type recordingPersister struct {
	loaded chan []models.Event

	mu    sync.Mutex
	saves [][]models.Event
}

func newRecordingPersister(initial []models.Event) *recordingPersister {
	p := &recordingPersister{loaded: make(chan []models.Event, 1)}
	if initial != nil {
		p.loaded <- initial
	}
	return p
}

func (p *recordingPersister) LoadAsync() <-chan []models.Event { return p.loaded }

func (p *recordingPersister) SaveAll(events []models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, events)
}

func (p *recordingPersister) Saves() [][]models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]models.Event(nil), p.saves...)
}

func (p *recordingPersister) Last(t *testing.T) []models.Event {
	t.Helper()
	saves := p.Saves()
	require.NotEmpty(t, saves, "nothing persisted")
	return saves[len(saves)-1]
}

func newEvent(name string) models.Event {
	return models.NewEvent(models.TypeClick, name, time.Now())
}

func hydratedManager(t *testing.T, initial []models.Event) (*Manager, *recordingPersister) {
	t.Helper()

	if initial == nil {
		initial = []models.Event{}
	}
	p := newRecordingPersister(initial)
	m := New(p, nil)
	t.Cleanup(m.Close)

	select {
	case <-m.Load():
	case <-time.After(2 * time.Second):
		t.Fatal("queue never hydrated")
	}
	return m, p
}

func snapshot(t *testing.T, m *Manager) []models.Event {
	t.Helper()
	events, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	return events
}

func TestManager_AddRetrySuccessScenario(t *testing.T) {
	t.Parallel()

	m, p := hydratedManager(t, nil)
	e1 := newEvent("E1")

	m.Add(e1)
	snapshot(t, m)
	require.Equal(t, []models.Event{e1}, p.Last(t))

	m.MarkRetry(e1.ID)
	snapshot(t, m)
	last := p.Last(t)
	require.Len(t, last, 1)
	assert.Equal(t, 1, last[0].Attempts)
	assert.Equal(t, e1.ID, last[0].ID)

	m.MarkSuccess(e1.ID)
	snapshot(t, m)
	assert.Empty(t, p.Last(t))
}

func TestManager_MarkSuccessTwiceIsNoop(t *testing.T) {
	t.Parallel()

	m, p := hydratedManager(t, nil)
	e1, e2 := newEvent("a"), newEvent("b")
	m.Add(e1)
	m.Add(e2)

	m.MarkSuccess(e1.ID)
	snapshot(t, m)
	savesAfterFirst := len(p.Saves())

	m.MarkSuccess(e1.ID)
	events := snapshot(t, m)

	assert.Equal(t, []models.Event{e2}, events)
	assert.Len(t, p.Saves(), savesAfterFirst, "absent id must not trigger a write")
}

func TestManager_MarkRetryUnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	m, p := hydratedManager(t, nil)
	m.MarkRetry(uuid.New())

	assert.Empty(t, snapshot(t, m))
	// Only the hydration write.
	assert.Len(t, p.Saves(), 1)
}

func TestManager_AddDuplicateIDIgnored(t *testing.T) {
	t.Parallel()

	m, _ := hydratedManager(t, nil)
	e := newEvent("dup")
	m.Add(e)

	again := e
	again.Attempts = 7
	m.Add(again)

	assert.Equal(t, []models.Event{e}, snapshot(t, m))
}

func TestManager_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	m, _ := hydratedManager(t, nil)
	e := newEvent("a")
	m.Add(e)

	events := snapshot(t, m)
	events[0].Attempts = 99
	events[0].Name = "mutated"

	got, ok, err := m.Get(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e, got)
}

func TestManager_Get(t *testing.T) {
	t.Parallel()

	m, _ := hydratedManager(t, nil)
	e := newEvent("a")
	m.Add(e)
	m.MarkRetry(e.ID)
	m.MarkRetry(e.ID)

	got, ok, err := m.Get(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Attempts)

	_, ok, err = m.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_PreservesSubmissionOrder(t *testing.T) {
	t.Parallel()

	m, _ := hydratedManager(t, nil)
	var want []models.Event
	for i := 0; i < 50; i++ {
		e := newEvent("e")
		want = append(want, e)
		m.Add(e)
	}

	assert.Equal(t, want, snapshot(t, m))
	n, err := m.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestManager_ConcurrentMutationsKeepInvariants(t *testing.T) {
	t.Parallel()

	m, p := hydratedManager(t, nil)

	ids := make([]uuid.UUID, 40)
	for i := range ids {
		e := newEvent("e")
		ids[i] = e.ID
		m.Add(e)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, seed))
			for i := 0; i < 200; i++ {
				id := ids[r.IntN(len(ids))]
				switch r.IntN(4) {
				case 0:
					m.MarkSuccess(id)
				case 1:
					m.Add(newEvent("late"))
				default:
					m.MarkRetry(id)
				}
			}
		}(uint64(w))
	}
	wg.Wait()
	snapshot(t, m)

	// Across every persisted snapshot: ids are unique and attempts never go
	// backwards.
	maxSeen := map[uuid.UUID]int{}
	for _, save := range p.Saves() {
		seen := map[uuid.UUID]bool{}
		for _, e := range save {
			require.False(t, seen[e.ID], "duplicate id %s in snapshot", e.ID)
			seen[e.ID] = true
			require.GreaterOrEqual(t, e.Attempts, maxSeen[e.ID], "attempts decreased for %s", e.ID)
			maxSeen[e.ID] = e.Attempts
		}
	}
}

func TestManager_NoPersistBeforeHydration(t *testing.T) {
	t.Parallel()

	p := newRecordingPersister(nil)
	m := New(p, nil)
	t.Cleanup(m.Close)

	onDisk := newEvent("from-disk")
	early := newEvent("early")

	hydrated := m.Load()
	m.Add(early)
	m.MarkRetry(early.ID)
	require.Equal(t, []models.Event{{
		ID: early.ID, Type: early.Type, Name: early.Name, TS: early.TS, Attempts: 1,
	}}, snapshot(t, m))
	assert.Empty(t, p.Saves())

	p.loaded <- []models.Event{onDisk}
	<-hydrated

	events := snapshot(t, m)
	require.Len(t, events, 2)
	assert.Equal(t, onDisk, events[0])
	assert.Equal(t, early.ID, events[1].ID)
	assert.Equal(t, events, p.Last(t))
}

func TestManager_HydrateDropsDuplicateIDsFromDisk(t *testing.T) {
	t.Parallel()

	e := newEvent("a")
	m, _ := hydratedManager(t, []models.Event{e, e})
	assert.Equal(t, []models.Event{e}, snapshot(t, m))
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	p := newRecordingPersister([]models.Event{})
	m := New(p, nil)
	<-m.Load()

	e := newEvent("a")
	m.Add(e)
	m.Close()

	// Add submitted before Close must have run.
	assert.Equal(t, []models.Event{e}, p.Last(t))

	m.Add(newEvent("after"))
	m.Close()

	_, err := m.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	_, _, err = m.Get(context.Background(), e.ID)
	require.ErrorIs(t, err, ErrClosed)
}

func TestManager_WithFileStore(t *testing.T) {
	t.Parallel()

	fs := persist.NewFileStore(filepath.Join(t.TempDir(), "events.json"))
	w := persist.NewWriter(fs, nil)
	m := New(w, nil)
	<-m.Load()

	e1 := newEvent("E1")
	m.Add(e1)
	m.MarkRetry(e1.ID)
	m.Close()
	require.NoError(t, w.Close(context.Background()))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, e1.ID, loaded[0].ID)
	assert.Equal(t, 1, loaded[0].Attempts)

	// A fresh process resumes from the same file.
	w2 := persist.NewWriter(fs, nil)
	m2 := New(w2, nil)
	t.Cleanup(func() {
		m2.Close()
		_ = w2.Close(context.Background())
	})
	<-m2.Load()

	events, err := m2.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loaded, events)
}
