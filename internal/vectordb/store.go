package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	ProviderPinecone = "pinecone"
	ProviderPGVector = "pgvector"
	ProviderQdrant   = "qdrant"
	ProviderRedis    = "redis"
	ProviderSQLite   = "sqlite"
	ProviderMemory   = "memory"

	// MetadataText is the metadata key under which remote indexes keep the
	// chunk text next to its vector.
	MetadataText = "text"

	defaultTopK    = 3
	defaultTimeout = 30 * time.Second
)

var (
	ErrInvalidConfig       = errors.New("invalid vector store config")
	ErrUnsupportedProvider = errors.New("unsupported vector store provider")
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	ErrUnsupportedFilter   = errors.New("unsupported delete filter")
)

// Record is one chunk as persisted in an index.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// Match is a retrieved record with its similarity to the query.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SearchOptions struct {
	TopK    int
	Filters map[string]string
}

// Filter selects records for deletion by ID or by exact metadata values.
// IDPrefix, when set next to Metadata, is the ID prefix shared by exactly
// the records Metadata selects; stores that cannot delete by metadata use it
// instead.
type Filter struct {
	IDs      []string
	Metadata map[string]string
	IDPrefix string
}

func (f Filter) Empty() bool {
	return len(f.IDs) == 0 && len(f.Metadata) == 0 && f.IDPrefix == ""
}

// requireMetadata rejects a filter that selects by ID prefix alone.
func requireMetadata(f Filter) error {
	if f.IDPrefix != "" && len(f.Metadata) == 0 {
		return fmt.Errorf("%w: id prefix without metadata", ErrUnsupportedFilter)
	}
	return nil
}

// Store is a vector index. Upsert overwrites records that share an ID.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Delete(ctx context.Context, filter Filter) error
	Close(ctx context.Context) error
}

type Config struct {
	Provider  string
	Index     string
	Namespace string
	Metric    string
	Dimension int

	APIKey     string
	Host       string
	ControlURL string
	APIVersion string
	URL        string
	DSN        string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// New connects to the store named by cfg.Provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderPinecone:
		return newPineconeStore(ctx, cfg)
	case ProviderPGVector:
		return newPGVectorStore(ctx, cfg)
	case ProviderQdrant:
		return newQdrantStore(ctx, cfg)
	case ProviderRedis:
		return newRedisStore(ctx, cfg)
	case ProviderSQLite:
		return newSQLiteStore(ctx, cfg)
	case ProviderMemory:
		return NewMemoryStore(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return fmt.Errorf("%w: index name is required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderPinecone:
		if cfg.APIKey == "" {
			return fmt.Errorf("%w: pinecone api key is required", ErrInvalidConfig)
		}
		if cfg.Host == "" && cfg.ControlURL == "" {
			return fmt.Errorf("%w: pinecone host or control url is required", ErrInvalidConfig)
		}
	case ProviderQdrant:
		if cfg.URL == "" {
			return fmt.Errorf("%w: qdrant url is required", ErrInvalidConfig)
		}
	case ProviderPGVector, ProviderRedis, ProviderSQLite:
		if cfg.DSN == "" {
			return fmt.Errorf("%w: %s dsn is required", ErrInvalidConfig, cfg.Provider)
		}
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func searchLimit(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	return topK
}

func checkDimension(dimension int, vec []float32) error {
	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, dimension, len(vec))
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankMatches orders by descending score, then by ID, and keeps the first k.
func rankMatches(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

func metadataMatches(meta map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := meta[key]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

func cloneMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// splitText removes MetadataText from a remote payload and returns it.
func splitText(payload map[string]any) (string, map[string]any) {
	meta := cloneMetadata(payload)
	text, _ := meta[MetadataText].(string)
	delete(meta, MetadataText)
	return text, meta
}
