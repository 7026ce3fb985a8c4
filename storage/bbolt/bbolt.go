// Package bbolt provides a BBolt-backed storage repository. Each collection
// is a top-level bucket; each document is a JSON-encoded storage.Document.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/portcullis/storage"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func readDocument(b *bbolt.Bucket, id string) (*storage.Document, error) {
	if b == nil {
		return nil, nil
	}
	data := b.Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var doc storage.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	return &doc, nil
}

func writeDocument(tx *bbolt.Tx, collection, id string, doc *storage.Document) error {
	b, err := tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

func (s *Store) Get(_ context.Context, collection, id string) (*storage.Document, error) {
	var doc *storage.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, err = readDocument(tx.Bucket([]byte(collection)), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return doc, nil
}

func (s *Store) Put(_ context.Context, collection, id string, doc *storage.Document) error {
	if err := storage.ValidateObject(doc.Data); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return writeDocument(tx, collection, id, doc)
	})
}

func (s *Store) PutCAS(_ context.Context, collection, id string, expectedVersion uint64, doc *storage.Document) error {
	if err := storage.ValidateObject(doc.Data); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		existing, err := readDocument(tx.Bucket([]byte(collection)), id)
		if err != nil {
			return err
		}
		if expectedVersion == 0 {
			if existing != nil {
				return storage.ErrCASFailed
			}
		} else if existing == nil || existing.Version != expectedVersion {
			return storage.ErrCASFailed
		}
		return writeDocument(tx, collection, id, doc)
	})
}

func (s *Store) Merge(_ context.Context, collection, id string, patch json.RawMessage) (*storage.Document, error) {
	var result *storage.Document
	err := s.db.Update(func(tx *bbolt.Tx) error {
		existing, err := readDocument(tx.Bucket([]byte(collection)), id)
		if err != nil {
			return err
		}
		var (
			base    json.RawMessage
			version uint64
		)
		if existing != nil {
			base = existing.Data
			version = existing.Version
		}
		merged, err := storage.MergeObjects(base, patch)
		if err != nil {
			return err
		}
		result = &storage.Document{Data: merged, Version: version + 1}
		return writeDocument(tx, collection, id, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) List(_ context.Context, collection string) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil || b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}
