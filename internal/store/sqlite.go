package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

//go:embed sqlite_schema.sql
var sqliteSchemaSQL string

var _ Sink = (*SQLiteStore)(nil)

// SQLiteStore keeps received events in a local SQLite file. It needs no
// external database, which makes it the default for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// InsertEvent stores e once per (tenant, id).
func (s *SQLiteStore) InsertEvent(ctx context.Context, tenantID string, e models.Event) (bool, error) {
	if err := validate(tenantID, e); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events(tenant_id, event_id, event_type, name, ts, attempts, received_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
	`, tenantID, e.ID.String(), e.Type, e.Name, e.TS, e.Attempts, time.Now().UTC().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return n == 1, nil
}

// CountEvents counts events of eventType (and name, when set) in [from,to).
func (s *SQLiteStore) CountEvents(ctx context.Context, tenantID, eventType, name string, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id = ?
		  AND event_type = ?
		  AND (? = '' OR name = ?)
		  AND ts >= ?
		  AND ts <  ?
	`, tenantID, eventType, name, name, epochSeconds(from), epochSeconds(to)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
