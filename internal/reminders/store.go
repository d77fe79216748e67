// Package reminders persists pending reminders and the set of already handled
// source messages.
//
// Every operation reads or writes a whole snapshot of one key. Concurrent
// writers sharing the same backend can overwrite each other's snapshot; callers
// are expected to run one cycle at a time.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/fortytwo/review-notifier/internal/storage"
	"github.com/sirupsen/logrus"
)

// Keys used in the backing store
const (
	ProcessedKey     = "processedEmails"
	RemindersKey     = "reminders"
	SchemaVersionKey = "schemaVersion"
)

// MaxProcessedIDs bounds the processed set; the oldest ids are evicted first
const MaxProcessedIDs = 100

// Store owns the persisted reminder collection and processed set
type Store struct {
	storage storage.StorageInterface
}

// NewStore creates a reminder store on top of a key/value backend
func NewStore(s storage.StorageInterface) *Store {
	return &Store{storage: s}
}

// LoadProcessedIDs returns the processed message ids, oldest first
func (s *Store) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	data, err := s.load(ctx, ProcessedKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []string{}, nil
	}
	return DecodeProcessedIDs(data)
}

// MarkProcessed appends id and evicts the oldest entries beyond MaxProcessedIDs.
// It does not check for duplicates.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	ids, err := s.LoadProcessedIDs(ctx)
	if err != nil {
		return err
	}

	ids = append(ids, id)
	if len(ids) > MaxProcessedIDs {
		ids = ids[len(ids)-MaxProcessedIDs:]
	}

	data, err := EncodeProcessedIDs(ids)
	if err != nil {
		return err
	}
	return s.save(ctx, ProcessedKey, data)
}

// LoadReminders returns every pending reminder in stored order
func (s *Store) LoadReminders(ctx context.Context) ([]models.Reminder, error) {
	data, err := s.load(ctx, RemindersKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []models.Reminder{}, nil
	}
	return DecodeReminders(data)
}

// SaveReminders replaces the stored reminder collection
func (s *Store) SaveReminders(ctx context.Context, reminders []models.Reminder) error {
	data, err := EncodeReminders(reminders)
	if err != nil {
		return err
	}
	return s.save(ctx, RemindersKey, data)
}

// Keys lists every key present in the backing store
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.storage.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear deletes every key owned by the store
func (s *Store) Clear(ctx context.Context) error {
	for _, key := range []string{ProcessedKey, RemindersKey, SchemaVersionKey} {
		if err := s.storage.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	logrus.Info("Cleared all persisted data")
	return nil
}

// load returns nil data when the key is absent
func (s *Store) load(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkSchemaVersion(ctx); err != nil {
		return nil, err
	}

	data, err := s.storage.Retrieve(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) save(ctx context.Context, key string, data []byte) error {
	if err := s.storage.Store(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	if err := s.storage.Store(ctx, SchemaVersionKey, []byte(SchemaVersion)); err != nil {
		return fmt.Errorf("failed to save %s: %w", SchemaVersionKey, err)
	}
	return nil
}

// checkSchemaVersion accepts a missing version (fresh or pre-versioning data)
func (s *Store) checkSchemaVersion(ctx context.Context) error {
	data, err := s.storage.Retrieve(ctx, SchemaVersionKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", SchemaVersionKey, err)
	}
	if string(data) != SchemaVersion {
		return fmt.Errorf("unsupported schema version %q (expected %q)", string(data), SchemaVersion)
	}
	return nil
}
