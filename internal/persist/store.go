// Package persist keeps the pending event list on local disk so undelivered
// events survive a process restart.
//
// A Store holds exactly one snapshot: every SaveAll replaces the previous list
// wholesale. Writer runs Store calls on a dedicated goroutine so callers never
// wait on disk.
package persist

import (
	"errors"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

// ErrCorrupt is wrapped by Load when persisted data exists but cannot be decoded.
var ErrCorrupt = errors.New("persisted events are corrupt")

// Store persists the full pending event list.
type Store interface {
	// Load returns the last saved list. A missing snapshot is an empty list,
	// not an error.
	Load() ([]models.Event, error)
	// SaveAll atomically replaces the saved list.
	SaveAll(events []models.Event) error
}
