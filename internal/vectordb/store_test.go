package vectordb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{ID: "sky", Text: "The sky is blue.", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"source": "a.txt", "chunk_index": 0}},
		{ID: "grass", Text: "Grass is green.", Embedding: []float32{0, 1, 0}, Metadata: map[string]any{"source": "a.txt", "chunk_index": 1}},
		{ID: "sun", Text: "The sun is yellow.", Embedding: []float32{0.7, 0.7, 0}, Metadata: map[string]any{"source": "b.txt", "chunk_index": 0}},
	}
}

func matchIDs(matches []Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

func TestNew(t *testing.T) {
	t.Run("Should reject a missing index name", func(t *testing.T) {
		_, err := New(t.Context(), &Config{Provider: ProviderMemory, Dimension: 3})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Should reject pinecone without an api key", func(t *testing.T) {
		_, err := New(t.Context(), &Config{Provider: ProviderPinecone, Index: "i", Dimension: 3, ControlURL: "http://x"})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Should reject unknown providers", func(t *testing.T) {
		_, err := New(t.Context(), &Config{Provider: "chroma", Index: "i", Dimension: 3})
		require.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("Should build the memory store", func(t *testing.T) {
		store, err := New(t.Context(), &Config{Provider: ProviderMemory, Index: "i", Dimension: 3})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("Should build the sqlite store", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "nested", "docqa.db")
		store, err := New(t.Context(), &Config{Provider: ProviderSQLite, Index: "i", Dimension: 3, DSN: dsn})
		require.NoError(t, err)
		require.NoError(t, store.Close(t.Context()))
	})
}

func TestRankMatches(t *testing.T) {
	t.Run("Should order by score then id and truncate", func(t *testing.T) {
		in := []Match{{ID: "b", Score: 0.5}, {ID: "a", Score: 0.5}, {ID: "c", Score: 0.9}, {ID: "d", Score: 0.1}}
		out := rankMatches(in, 3)
		assert.Equal(t, []string{"c", "a", "b"}, matchIDs(out))
	})

	t.Run("Should return fewer matches than k when fewer exist", func(t *testing.T) {
		out := rankMatches([]Match{{ID: "x", Score: 1}}, 3)
		assert.Len(t, out, 1)
	})
}

func TestCosine(t *testing.T) {
	t.Run("Should score identical directions as one", func(t *testing.T) {
		assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	})
	t.Run("Should score zero vectors and mismatched lengths as zero", func(t *testing.T) {
		assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
		assert.Zero(t, cosine([]float32{1}, []float32{1, 1}))
	})
}
