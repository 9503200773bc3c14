package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/document"
)

func wordsDocument(n int) *document.Document {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%04d", i)
	}
	return &document.Document{Source: "data/words.txt", Content: strings.Join(words, " ")}
}

// sharedOverlap returns the longest suffix of prev, up to limit runes, that
// is also a prefix of next.
func sharedOverlap(prev, next string, limit int) string {
	pr := []rune(prev)
	nr := []rune(next)
	for k := min(limit, len(pr), len(nr)); k > 0; k-- {
		if string(pr[len(pr)-k:]) == string(nr[:k]) {
			return string(nr[:k])
		}
	}
	return ""
}

func newRuneSplitter(t *testing.T) *Splitter {
	t.Helper()
	s, err := NewSplitter(Settings{Size: 500, Overlap: 50, LengthUnit: UnitRunes})
	require.NoError(t, err)
	return s
}

func TestSplitter_Split(t *testing.T) {
	t.Run("Should keep a short document in one chunk", func(t *testing.T) {
		doc := &document.Document{Source: "sky.txt", Content: "The sky is blue."}
		chunks, err := newRuneSplitter(t).Split(doc, "idx")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "The sky is blue.", chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, "sky.txt", chunks[0].Metadata[document.MetadataSource])
		assert.Equal(t, 0, chunks[0].Metadata[MetadataChunkIndex])
	})

	t.Run("Should bound every chunk by the configured size", func(t *testing.T) {
		chunks, err := newRuneSplitter(t).Split(wordsDocument(400), "idx")
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 500)
		}
	})

	t.Run("Should share a bounded overlap and rebuild the original text", func(t *testing.T) {
		doc := wordsDocument(400)
		chunks, err := newRuneSplitter(t).Split(doc, "idx")
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)

		rebuilt := chunks[0].Text
		for i := 1; i < len(chunks); i++ {
			overlap := sharedOverlap(chunks[i-1].Text, chunks[i].Text, 50)
			require.NotEmpty(t, overlap, "chunk %d shares nothing with chunk %d", i, i-1)
			assert.LessOrEqual(t, utf8.RuneCountInString(overlap), 50)
			rebuilt += strings.TrimPrefix(chunks[i].Text, overlap)
		}
		assert.Equal(t, doc.Content, rebuilt)
	})

	t.Run("Should produce the same chunks and IDs on every run", func(t *testing.T) {
		doc := wordsDocument(250)
		first, err := newRuneSplitter(t).Split(doc, "idx")
		require.NoError(t, err)
		second, err := newRuneSplitter(t).Split(doc, "idx")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		seen := make(map[string]struct{}, len(first))
		for _, c := range first {
			_, dup := seen[c.ID]
			assert.False(t, dup, "duplicate chunk id %s", c.ID)
			seen[c.ID] = struct{}{}
			assert.True(t, strings.HasPrefix(c.ID, IDPrefix(doc.Source)), c.ID)
			assert.Len(t, c.ID, len(IDPrefix(doc.Source))+32)
		}
	})

	t.Run("Should scope IDs by index and source", func(t *testing.T) {
		assert.NotEqual(t, ID("a", "f.txt", 0, "x"), ID("b", "f.txt", 0, "x"))
		assert.NotEqual(t, ID("a", "f.txt", 0, "x"), ID("a", "g.txt", 0, "x"))
		assert.NotEqual(t, ID("a", "f.txt", 0, "x"), ID("a", "f.txt", 0, "y"))
	})

	t.Run("Should prefix IDs with the document id", func(t *testing.T) {
		assert.Equal(t, DocumentID("f.txt")+"#", IDPrefix("f.txt"))
		assert.True(t, strings.HasPrefix(ID("a", "f.txt", 3, "x"), IDPrefix("f.txt")))
		assert.False(t, strings.HasPrefix(ID("a", "g.txt", 3, "x"), IDPrefix("f.txt")))
	})

	t.Run("Should return nothing for blank content", func(t *testing.T) {
		chunks, err := newRuneSplitter(t).Split(&document.Document{Source: "blank", Content: " \n "}, "idx")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestNewSplitter(t *testing.T) {
	t.Run("Should reject an overlap as large as the size", func(t *testing.T) {
		_, err := NewSplitter(Settings{Size: 50, Overlap: 50})
		require.ErrorIs(t, err, ErrInvalidSettings)
	})

	t.Run("Should reject an unknown length unit", func(t *testing.T) {
		_, err := NewSplitter(Settings{Size: 50, Overlap: 5, LengthUnit: "bytes"})
		require.ErrorIs(t, err, ErrInvalidSettings)
	})
}
