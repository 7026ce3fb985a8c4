// Package storagetest provides the behavioural test suite shared by every
// storage.Repository backend.
package storagetest

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/portcullis/storage"
)

// Run exercises repo against the storage.Repository contract. The repository
// must start empty.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(t.Context(), "missing", "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		doc := &storage.Document{Data: json.RawMessage(`{"username":"alice","n":1}`), Version: 3}
		require.NoError(t, repo.Put(t.Context(), "put", "alice", doc))

		got, err := repo.Get(t.Context(), "put", "alice")
		require.NoError(t, err)
		assert.JSONEq(t, `{"username":"alice","n":1}`, string(got.Data))
		assert.Equal(t, uint64(3), got.Version)
	})

	t.Run("PutRejectsNonObject", func(t *testing.T) {
		err := repo.Put(t.Context(), "put", "bad", &storage.Document{Data: json.RawMessage(`[1,2]`)})
		assert.ErrorIs(t, err, storage.ErrNotObject)
	})

	t.Run("PutCASCreateOnly", func(t *testing.T) {
		doc := &storage.Document{Data: json.RawMessage(`{"v":1}`), Version: 1}
		require.NoError(t, repo.PutCAS(t.Context(), "cas", "c1", 0, doc))
		assert.ErrorIs(t, repo.PutCAS(t.Context(), "cas", "c1", 0, doc), storage.ErrCASFailed)

		got, err := repo.Get(t.Context(), "cas", "c1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got.Data))
	})

	t.Run("PutCASVersion", func(t *testing.T) {
		require.NoError(t, repo.PutCAS(t.Context(), "cas", "c2", 0,
			&storage.Document{Data: json.RawMessage(`{"v":1}`), Version: 1}))

		err := repo.PutCAS(t.Context(), "cas", "c2", 7,
			&storage.Document{Data: json.RawMessage(`{"v":2}`), Version: 8})
		assert.ErrorIs(t, err, storage.ErrCASFailed)

		require.NoError(t, repo.PutCAS(t.Context(), "cas", "c2", 1,
			&storage.Document{Data: json.RawMessage(`{"v":2}`), Version: 2}))
		got, err := repo.Get(t.Context(), "cas", "c2")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version)
		assert.JSONEq(t, `{"v":2}`, string(got.Data))
	})

	t.Run("PutCASMissingWithVersion", func(t *testing.T) {
		err := repo.PutCAS(t.Context(), "cas", "absent", 1,
			&storage.Document{Data: json.RawMessage(`{}`), Version: 2})
		assert.ErrorIs(t, err, storage.ErrCASFailed)
	})

	t.Run("MergeUpsert", func(t *testing.T) {
		doc, err := repo.Merge(t.Context(), "merge", "m1", json.RawMessage(`{"a":1,"b":"x"}`))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), doc.Version)
		assert.JSONEq(t, `{"a":1,"b":"x"}`, string(doc.Data))

		doc, err = repo.Merge(t.Context(), "merge", "m1", json.RawMessage(`{"b":"y","c":true}`))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), doc.Version)
		assert.JSONEq(t, `{"a":1,"b":"y","c":true}`, string(doc.Data))

		got, err := repo.Get(t.Context(), "merge", "m1")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version)
		assert.JSONEq(t, `{"a":1,"b":"y","c":true}`, string(got.Data))
	})

	t.Run("MergeRejectsNonObject", func(t *testing.T) {
		_, err := repo.Merge(t.Context(), "merge", "m2", json.RawMessage(`"scalar"`))
		assert.ErrorIs(t, err, storage.ErrNotObject)
		_, err = repo.Get(t.Context(), "merge", "m2")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("MergeConcurrent", func(t *testing.T) {
		const writers = 32
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				patch := json.RawMessage(fmt.Sprintf(`{"f%d":%d}`, i, i))
				if _, err := repo.Merge(t.Context(), "merge", "concurrent", patch); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := repo.Get(t.Context(), "merge", "concurrent")
		require.NoError(t, err)
		assert.Equal(t, uint64(writers), got.Version)
		var fields map[string]int
		require.NoError(t, json.Unmarshal(got.Data, &fields))
		assert.Len(t, fields, writers)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := repo.List(t.Context(), "list")
		require.NoError(t, err)
		assert.Empty(t, ids)

		for _, id := range []string{"b", "a", "c"} {
			_, err := repo.Merge(t.Context(), "list", id, json.RawMessage(`{}`))
			require.NoError(t, err)
		}
		ids, err = repo.List(t.Context(), "list")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		_, err := repo.Merge(t.Context(), "del", "d1", json.RawMessage(`{}`))
		require.NoError(t, err)
		require.NoError(t, repo.Delete(t.Context(), "del", "d1"))

		_, err = repo.Get(t.Context(), "del", "d1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(t.Context(), "del", "d1"), storage.ErrNotFound)
	})
}
