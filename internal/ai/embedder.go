package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/logger"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyInput        = errors.New("embedding input is empty")
)

// VectorCache is a shared store of computed vectors, keyed by model and text.
type VectorCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
}

type EmbedderOptions struct {
	Model         string
	Dimension     int
	StripNewLines bool
	CacheSize     int
	CacheTTL      time.Duration
	Shared        VectorCache
}

// Embedder turns text into vectors. Results are served from an in-process
// LRU and an optional shared cache before the model is called.
type Embedder struct {
	inner     *embeddings.EmbedderImpl
	model     string
	dimension int
	local     *expirable.LRU[string, []float32]
	shared    VectorCache
}

var _ embeddings.Embedder = (*Embedder)(nil)

func NewEmbedder(client embeddings.EmbedderClient, opts EmbedderOptions) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("embedding client is required")
	}
	inner, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(opts.StripNewLines))
	if err != nil {
		return nil, fmt.Errorf("create embedder failed: %w", err)
	}
	e := &Embedder{
		inner:     inner,
		model:     opts.Model,
		dimension: opts.Dimension,
		shared:    opts.Shared,
	}
	if opts.CacheSize > 0 {
		e.local = expirable.NewLRU[string, []float32](opts.CacheSize, nil, opts.CacheTTL)
	}
	return e, nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedDocuments returns one vector per text, in input order. Texts missing
// from both caches are embedded in a single model call.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if vec, ok := e.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed documents failed: %w", err)
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embed documents failed: got %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		if err := e.checkDimension(vec); err != nil {
			return nil, err
		}
		out[missIdx[j]] = vec
		e.store(ctx, missTexts[j], vec)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if vec, ok := e.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if err := e.checkDimension(vec); err != nil {
		return nil, err
	}
	e.store(ctx, text, vec)
	return vec, nil
}

func (e *Embedder) checkDimension(vec []float32) error {
	if e.dimension > 0 && len(vec) != e.dimension {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, e.dimension, len(vec))
	}
	return nil
}

func (e *Embedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := e.cacheKey(text)
	if e.local != nil {
		if vec, ok := e.local.Get(key); ok {
			return vec, true
		}
	}
	if e.shared == nil {
		return nil, false
	}
	vec, ok, err := e.shared.Get(ctx, e.model, text)
	if err != nil {
		logger.FromContext(ctx).Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if ok && e.checkDimension(vec) == nil {
		if e.local != nil {
			e.local.Add(key, vec)
		}
		return vec, true
	}
	return nil, false
}

func (e *Embedder) store(ctx context.Context, text string, vec []float32) {
	if e.local != nil {
		e.local.Add(e.cacheKey(text), vec)
	}
	if e.shared != nil {
		if err := e.shared.Set(ctx, e.model, text, vec); err != nil {
			logger.FromContext(ctx).Warn("embedding cache write failed", "error", err)
		}
	}
}

func (e *Embedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
