package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

// schemaSQL is embedded so the collector can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

var _ Sink = (*PostgresStore)(nil)

// PostgresStore is the durable persistence layer for received events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertEvent persists an event and returns inserted=false when it is a
// redelivery of one already stored.
func (p *PostgresStore) InsertEvent(ctx context.Context, tenantID string, e models.Event) (bool, error) {
	if err := validate(tenantID, e); err != nil {
		return false, err
	}

	// RETURNING 1 only when inserted; duplicates return no rows.
	var one int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO events(tenant_id, event_id, event_type, name, ts, attempts)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
		RETURNING 1
	`, tenantID, e.ID, e.Type, e.Name, e.Time().UTC(), e.Attempts).Scan(&one)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// CountEvents returns the number of events of eventType (and name, when set)
// in the half-open window [from,to).
func (p *PostgresStore) CountEvents(ctx context.Context, tenantID, eventType, name string, from, to time.Time) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id=$1
		  AND event_type=$2
		  AND ($3 = '' OR name=$3)
		  AND ts >= $4
		  AND ts <  $5
	`, tenantID, eventType, name, from, to).Scan(&count)

	return count, err
}
