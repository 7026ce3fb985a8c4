package bbolt

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/portcullis/storage/storagetest"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "credentials-test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltRepository(t *testing.T) {
	storagetest.Run(t, NewRepository(newTestDB(t)))
}

func TestBBoltReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Merge(t.Context(), "credentials", "admin", []byte(`{"username":"admin"}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	doc, err := s.Get(t.Context(), "credentials", "admin")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if doc.Version != 1 {
		t.Errorf("expected version 1, got %d", doc.Version)
	}
}
