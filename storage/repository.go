// Package storage provides the document store abstraction behind the
// credential store. Documents are JSON objects addressed by collection and id
// and carry a version counter used for compare-and-swap and merge writes.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
	// ErrNotObject is returned when document data or a merge patch is not a
	// JSON object.
	ErrNotObject = errors.New("document is not a JSON object")
)

// Document is a stored JSON object and its version.
type Document struct {
	Data    json.RawMessage `json:"data"`
	Version uint64          `json:"version"`
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		Data:    append(json.RawMessage(nil), d.Data...),
		Version: d.Version,
	}
}

// Repository defines the interface for document storage.
//
// PutCAS with expectedVersion 0 is a create-only write: it fails with
// ErrCASFailed if the document already exists. Merge is an upsert: the patch
// object's top-level fields overwrite the stored ones, other stored fields are
// preserved, a missing document is created from the patch, and the version is
// incremented. Merge runs as a single atomic read-modify-write.
type Repository interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Put(ctx context.Context, collection, id string, doc *Document) error
	PutCAS(ctx context.Context, collection, id string, expectedVersion uint64, doc *Document) error
	Merge(ctx context.Context, collection, id string, patch json.RawMessage) (*Document, error)
	List(ctx context.Context, collection string) ([]string, error)
	Delete(ctx context.Context, collection, id string) error
}
