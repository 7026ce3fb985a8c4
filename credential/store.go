package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmcleod/portcullis/storage"
)

// Collection is the storage collection holding credential documents.
const Collection = "credentials"

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("credential not found")
	// ErrExists is returned by Create when a record already exists.
	ErrExists = errors.New("credential already exists")
)

// Store reads and writes credential records.
type Store struct {
	repo storage.Repository
}

// NewStore returns a Store persisting records in repo.
func NewStore(repo storage.Repository) *Store {
	return &Store{repo: repo}
}

// Get loads the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	doc, err := s.repo.Get(ctx, Collection, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(doc.Data, &rec); err != nil {
		return nil, fmt.Errorf("decoding credential %s: %w", key, err)
	}
	return &rec, nil
}

// Create stores rec under its username only if no record exists yet. A
// concurrent or earlier creation yields ErrExists and leaves the stored
// record untouched.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.repo.PutCAS(ctx, Collection, rec.Username, 0, &storage.Document{Data: data, Version: 1})
	if errors.Is(err, storage.ErrCASFailed) {
		return fmt.Errorf("%s: %w", rec.Username, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("creating credential %s: %w", rec.Username, err)
	}
	return nil
}

// Update merges patch into the record stored under key, creating it when
// absent, and returns the merged record.
func (s *Store) Update(ctx context.Context, key string, patch Patch) (*Record, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Merge(ctx, Collection, key, data)
	if err != nil {
		return nil, fmt.Errorf("updating credential %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(doc.Data, &rec); err != nil {
		return nil, fmt.Errorf("decoding credential %s: %w", key, err)
	}
	return &rec, nil
}

// List returns the keys of all stored records.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.repo.List(ctx, Collection)
}
