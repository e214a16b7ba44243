// Package store persists events received by the dev collector.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrInvalidEvent is returned by InsertEvent for events missing required fields.
var ErrInvalidEvent = errors.New("tenant, event id and type required")

// Sink is the collector's durable event storage.
//
// InsertEvent is idempotent on (tenant, event id): redelivering an event the
// SDK already sent returns inserted=false instead of a second row.
type Sink interface {
	InsertEvent(ctx context.Context, tenantID string, e models.Event) (bool, error)
	CountEvents(ctx context.Context, tenantID, eventType, name string, from, to time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// Open connects to the sink selected by driver and applies its schema.
func Open(ctx context.Context, driver, dsn string) (Sink, error) {
	switch driver {
	case DriverPostgres:
		st, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		return st, nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}

func validate(tenantID string, e models.Event) error {
	if tenantID == "" || e.ID == uuid.Nil || e.Type == "" {
		return ErrInvalidEvent
	}
	return nil
}
