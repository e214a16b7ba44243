package persist

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

var _ Store = (*BadgerStore)(nil)

// eventPrefix namespaces queue entries; the zero-padded suffix keeps key
// order equal to queue order.
const eventPrefix = "events/"

// BadgerStore keeps the list in a BadgerDB directory, one key per event.
//
// Key format: events/{index}
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a BadgerDB at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Load returns the saved events in queue order.
func (s *BadgerStore) Load() ([]models.Event, error) {
	events := []models.Event{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e models.Event
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("%w: key %s: %v", ErrCorrupt, it.Item().Key(), err)
				}
				events = append(events, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return []models.Event{}, err
	}
	return events, nil
}

// SaveAll drops every stored event and writes the new list in the same
// transaction.
func (s *BadgerStore) SaveAll(events []models.Event) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}

		for i, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", e.ID, err)
			}
			if err := txn.Set(eventKey(i), data); err != nil {
				return fmt.Errorf("set event %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func eventKey(i int) []byte {
	return []byte(fmt.Sprintf("%s%010d", eventPrefix, i))
}
