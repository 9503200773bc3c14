package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	"docqa/internal/document"
)

const (
	UnitRunes  = "runes"
	UnitTokens = "tokens"

	MetadataChunkIndex = "chunk_index"
	MetadataDocumentID = "document_id"
)

var ErrInvalidSettings = errors.New("invalid chunk settings")

// Settings bound every chunk to Size units and let each chunk repeat at most
// Overlap units from the end of the previous one.
type Settings struct {
	Size          int
	Overlap       int
	LengthUnit    string
	TokenEncoding string
}

// Chunk is a contiguous piece of a document and the unit of retrieval.
type Chunk struct {
	ID       string
	Index    int
	Text     string
	Metadata map[string]any
}

type Splitter struct {
	settings Settings
	splitter textsplitter.RecursiveCharacter
}

func NewSplitter(settings Settings) (*Splitter, error) {
	if settings.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrInvalidSettings)
	}
	if settings.Overlap < 0 || settings.Overlap >= settings.Size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size)", ErrInvalidSettings)
	}
	lenFunc, err := lengthFunc(settings)
	if err != nil {
		return nil, err
	}
	return &Splitter{
		settings: settings,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(settings.Size),
			textsplitter.WithChunkOverlap(settings.Overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(lenFunc),
		),
	}, nil
}

func lengthFunc(settings Settings) (func(string) int, error) {
	switch settings.LengthUnit {
	case "", UnitRunes:
		return utf8.RuneCountInString, nil
	case UnitTokens:
		name := settings.TokenEncoding
		if name == "" {
			name = "cl100k_base"
		}
		enc, err := tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("load token encoding %q failed: %w", name, err)
		}
		return func(s string) int { return len(enc.Encode(s, nil, nil)) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown length unit %q", ErrInvalidSettings, settings.LengthUnit)
	}
}

// Split cuts doc into chunks. IDs depend only on scope, the document source,
// the chunk position and the chunk text, so splitting the same input twice
// yields the same IDs.
func (s *Splitter) Split(doc *document.Document, scope string) ([]Chunk, error) {
	if doc == nil || strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}
	texts, err := s.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("split text failed: %w", err)
	}
	docID := DocumentID(doc.Source)
	chunks := make([]Chunk, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		idx := len(chunks)
		meta := doc.Metadata()
		meta[MetadataChunkIndex] = idx
		meta[MetadataDocumentID] = docID
		chunks = append(chunks, Chunk{
			ID:       ID(scope, doc.Source, idx, text),
			Index:    idx,
			Text:     text,
			Metadata: meta,
		})
	}
	return chunks, nil
}

// ID is "<document id>#<hash>", so every chunk of a source shares
// IDPrefix(source).
func ID(scope, source string, index int, text string) string {
	textSum := sha256.Sum256([]byte(text))
	key := fmt.Sprintf("%s::%s::%d::%s", scope, source, index, hex.EncodeToString(textSum[:]))
	sum := sha256.Sum256([]byte(key))
	return IDPrefix(source) + hex.EncodeToString(sum[:16])
}

func IDPrefix(source string) string {
	return DocumentID(source) + "#"
}

func DocumentID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:8])
}
