// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Documents live in a single table keyed by (collection, id) with the JSON
// object stored as JSONB. Merge is one INSERT ... ON CONFLICT statement using
// the JSONB concatenation operator, so concurrent merges serialize on the row
// lock instead of racing a read-modify-write in the application.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/portcullis/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	var (
		data    []byte
		version uint64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &storage.Document{Data: data, Version: version}, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, doc *storage.Document) error {
	if err := storage.ValidateObject(doc.Data); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc, version)
		 VALUES ($1, $2, $3::jsonb, $4)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET doc = EXCLUDED.doc, version = EXCLUDED.version, updated_at = now()`,
		collection, id, string(doc.Data), doc.Version)
	return err
}

func (s *Store) PutCAS(ctx context.Context, collection, id string, expectedVersion uint64, doc *storage.Document) error {
	if err := storage.ValidateObject(doc.Data); err != nil {
		return err
	}
	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO documents (collection, id, doc, version)
			 VALUES ($1, $2, $3::jsonb, $4)
			 ON CONFLICT (collection, id) DO NOTHING`,
			collection, id, string(doc.Data), doc.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrCASFailed
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc = $3::jsonb, version = $4, updated_at = now()
		 WHERE collection = $1 AND id = $2 AND version = $5`,
		collection, id, string(doc.Data), doc.Version, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCASFailed
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, id string, patch json.RawMessage) (*storage.Document, error) {
	if err := storage.ValidateObject(patch); err != nil {
		return nil, err
	}
	var (
		data    []byte
		version uint64
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, id, doc, version)
		 VALUES ($1, $2, $3::jsonb, 1)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET doc = documents.doc || EXCLUDED.doc,
		               version = documents.version + 1,
		               updated_at = now()
		 RETURNING doc, version`,
		collection, id, string(patch)).Scan(&data, &version)
	if err != nil {
		return nil, err
	}
	return &storage.Document{Data: data, Version: version}, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM documents WHERE collection = $1 ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return nil
}
