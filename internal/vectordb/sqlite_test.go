package vectordb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, namespace string) Store {
	t.Helper()
	store, err := newSQLiteStore(t.Context(), &Config{
		Provider:  ProviderSQLite,
		Index:     "docs",
		Namespace: namespace,
		Dimension: 3,
		DSN:       filepath.Join(t.TempDir(), "docqa.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(t.Context()) })
	return store
}

func TestSQLiteStore(t *testing.T) {
	t.Run("Should upsert and search by cosine similarity", func(t *testing.T) {
		store := newTestSQLiteStore(t, "")
		require.NoError(t, store.Upsert(t.Context(), sampleRecords()))

		matches, err := store.Search(t.Context(), []float32{0, 1, 0}, SearchOptions{TopK: 3})
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "grass", matches[0].ID)
		assert.Equal(t, "Grass is green.", matches[0].Text)
		assert.Equal(t, "a.txt", matches[0].Metadata["source"])
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	})

	t.Run("Should not duplicate records on repeated upserts", func(t *testing.T) {
		store := newTestSQLiteStore(t, "")
		require.NoError(t, store.Upsert(t.Context(), sampleRecords()))
		updated := sampleRecords()
		updated[0].Text = "The sky is very blue."
		require.NoError(t, store.Upsert(t.Context(), updated))

		matches, err := store.Search(t.Context(), []float32{1, 0, 0}, SearchOptions{TopK: 10})
		require.NoError(t, err)
		assert.Len(t, matches, 3)
		assert.Equal(t, "The sky is very blue.", matches[0].Text)
	})

	t.Run("Should filter by metadata", func(t *testing.T) {
		store := newTestSQLiteStore(t, "")
		require.NoError(t, store.Upsert(t.Context(), sampleRecords()))

		matches, err := store.Search(t.Context(), []float32{1, 0, 0}, SearchOptions{TopK: 3, Filters: map[string]string{"chunk_index": "1"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"grass"}, matchIDs(matches))
	})

	t.Run("Should delete by id and by metadata", func(t *testing.T) {
		store := newTestSQLiteStore(t, "")
		require.NoError(t, store.Upsert(t.Context(), sampleRecords()))

		require.NoError(t, store.Delete(t.Context(), Filter{IDs: []string{"sky"}}))
		require.NoError(t, store.Delete(t.Context(), Filter{Metadata: map[string]string{"source": "b.txt"}}))

		matches, err := store.Search(t.Context(), []float32{1, 0, 0}, SearchOptions{TopK: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"grass"}, matchIDs(matches))
	})

	t.Run("Should delete every record under an id prefix", func(t *testing.T) {
		store := newTestSQLiteStore(t, "")
		require.NoError(t, store.Upsert(t.Context(), []Record{
			{ID: "d1#a", Text: "a", Embedding: []float32{1, 0, 0}},
			{ID: "d1#b", Text: "b", Embedding: []float32{0, 1, 0}},
			{ID: "d2#a", Text: "c", Embedding: []float32{0, 0, 1}},
		}))

		require.NoError(t, store.Delete(t.Context(), Filter{IDPrefix: "d1#"}))
		matches, err := store.Search(t.Context(), []float32{0, 0, 1}, SearchOptions{TopK: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"d2#a"}, matchIDs(matches))
	})

	t.Run("Should keep namespaces apart", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "shared.db")
		a, err := newSQLiteStore(t.Context(), &Config{Index: "docs", Namespace: "a", Dimension: 3, DSN: dsn})
		require.NoError(t, err)
		require.NoError(t, a.Upsert(t.Context(), sampleRecords()))
		require.NoError(t, a.Close(t.Context()))

		b, err := newSQLiteStore(t.Context(), &Config{Index: "docs", Namespace: "b", Dimension: 3, DSN: dsn})
		require.NoError(t, err)
		defer b.Close(t.Context())
		matches, err := b.Search(t.Context(), []float32{1, 0, 0}, SearchOptions{TopK: 3})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
