package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "collector.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestSQLiteStore_InsertIsIdempotent(t *testing.T) {
	t.Parallel()

	st := openTestSQLite(t)
	ctx := context.Background()
	e := models.NewEvent(models.TypeClick, "BuyButton", time.Now())

	inserted, err := st.InsertEvent(ctx, "tenant1", e)
	require.NoError(t, err)
	assert.True(t, inserted)

	// A redelivery after a lost response carries a higher attempt count but
	// the same id.
	e.Attempts = 2
	inserted, err = st.InsertEvent(ctx, "tenant1", e)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same id under another tenant is a different row.
	inserted, err = st.InsertEvent(ctx, "tenant2", e)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSQLiteStore_InsertRejectsInvalid(t *testing.T) {
	t.Parallel()

	st := openTestSQLite(t)
	ctx := context.Background()

	_, err := st.InsertEvent(ctx, "", models.NewEvent(models.TypeClick, "x", time.Now()))
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = st.InsertEvent(ctx, "tenant1", models.Event{Type: models.TypeClick})
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = st.InsertEvent(ctx, "tenant1", models.NewEvent("", "x", time.Now()))
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestSQLiteStore_CountEvents(t *testing.T) {
	t.Parallel()

	st := openTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 8, 13, 12, 0, 0, 0, time.UTC)

	insert := func(tenant, typ, name string, at time.Time) {
		t.Helper()
		_, err := st.InsertEvent(ctx, tenant, models.NewEvent(typ, name, at))
		require.NoError(t, err)
	}

	insert("tenant1", models.TypeClick, "BuyButton", base)
	insert("tenant1", models.TypeClick, "BuyButton", base.Add(time.Minute))
	insert("tenant1", models.TypeClick, "Cancel", base.Add(time.Minute))
	insert("tenant1", models.TypeScreenView, "Home", base)
	insert("tenant1", models.TypeClick, "BuyButton", base.Add(time.Hour)) // on the upper bound
	insert("tenant2", models.TypeClick, "BuyButton", base)

	tests := []struct {
		name      string
		tenant    string
		eventType string
		eventName string
		want      int64
	}{
		{name: "all clicks", tenant: "tenant1", eventType: models.TypeClick, want: 3},
		{name: "clicks by name", tenant: "tenant1", eventType: models.TypeClick, eventName: "BuyButton", want: 2},
		{name: "screen views", tenant: "tenant1", eventType: models.TypeScreenView, want: 1},
		{name: "other tenant", tenant: "tenant2", eventType: models.TypeClick, want: 1},
		{name: "unknown tenant", tenant: "nobody", eventType: models.TypeClick, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.CountEvents(ctx, tt.tenant, tt.eventType, tt.eventName, base, base.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	sink, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Ping(context.Background()))
}
