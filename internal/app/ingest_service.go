package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/chunk"
	"docqa/internal/document"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/vectordb"
)

// IngestRunRecorder persists the outcome of each ingestion run.
type IngestRunRecorder interface {
	Create(run *model.IngestRun) error
}

type IngestOptions struct {
	Index           string
	Namespace       string
	ReplaceExisting bool
}

// scope keys chunk IDs to the index and namespace they are written to.
func (o IngestOptions) scope() string {
	return o.Index + "/" + o.Namespace
}

type IngestService struct {
	loader   *document.Loader
	splitter *chunk.Splitter
	embedder embeddings.Embedder
	store    vectordb.Store
	opts     IngestOptions
	runs     IngestRunRecorder
	metrics  *metrics.Metrics
}

// IngestResult is the result of one ingestion run.
type IngestResult struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Index      string        `json:"index"`
	ChunkCount int           `json:"chunk_count"`
	Duration   time.Duration `json:"duration_ns"`
}

// NewIngestService wires the ingestion pipeline. runs and m may be nil.
func NewIngestService(
	loader *document.Loader,
	splitter *chunk.Splitter,
	embedder embeddings.Embedder,
	store vectordb.Store,
	opts IngestOptions,
	runs IngestRunRecorder,
	m *metrics.Metrics,
) *IngestService {
	return &IngestService{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		opts:     opts,
		runs:     runs,
		metrics:  m,
	}
}

// Ingest loads the file at path, splits it, embeds every chunk and upserts
// the records into the index.
func (s *IngestService) Ingest(ctx context.Context, path string) (*IngestResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	start := time.Now()
	doc, err := s.loader.Load(ctx, path)
	if err != nil {
		err = fmt.Errorf("load document failed: %w", err)
		s.finish(ctx, path, 0, start, err)
		return nil, err
	}
	return s.ingestDocument(ctx, doc, start)
}

// IngestReader runs the pipeline over content read from r, labelled with source.
func (s *IngestService) IngestReader(ctx context.Context, source string, r io.Reader) (*IngestResult, error) {
	source = strings.TrimSpace(source)
	if source == "" || r == nil {
		return nil, ErrInvalidInput
	}
	start := time.Now()
	doc, err := s.loader.Read(ctx, source, r)
	if err != nil {
		err = fmt.Errorf("load document failed: %w", err)
		s.finish(ctx, source, 0, start, err)
		return nil, err
	}
	return s.ingestDocument(ctx, doc, start)
}

func (s *IngestService) ingestDocument(ctx context.Context, doc *document.Document, start time.Time) (*IngestResult, error) {
	chunks, err := s.indexDocument(ctx, doc)
	runID := s.finish(ctx, doc.Source, chunks, start, err)
	if err != nil {
		return nil, err
	}
	return &IngestResult{
		RunID:      runID,
		Source:     doc.Source,
		Index:      s.opts.Index,
		ChunkCount: chunks,
		Duration:   time.Since(start),
	}, nil
}

func (s *IngestService) indexDocument(ctx context.Context, doc *document.Document) (int, error) {
	chunks, err := s.splitter.Split(doc, s.opts.scope())
	if err != nil {
		return 0, fmt.Errorf("split document failed: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Source)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbeddingMismatch, len(vectors), len(chunks))
	}

	records := make([]vectordb.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectordb.Record{
			ID:        c.ID,
			Text:      c.Text,
			Embedding: vectors[i],
			Metadata:  c.Metadata,
		}
	}

	if s.opts.ReplaceExisting {
		filter := vectordb.Filter{
			Metadata: map[string]string{document.MetadataSource: doc.Source},
			IDPrefix: chunk.IDPrefix(doc.Source),
		}
		if err := s.store.Delete(ctx, filter); err != nil {
			return 0, fmt.Errorf("delete existing records failed: %w", err)
		}
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upsert records failed: %w", err)
	}
	return len(records), nil
}

// finish logs the run, records metrics and history, and returns the run ID.
// A failure to persist history is logged and never fails the run.
func (s *IngestService) finish(ctx context.Context, source string, chunks int, start time.Time, runErr error) string {
	elapsed := time.Since(start)
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With("run_id", runID, "source", source, "index", s.opts.Index)

	run := &model.IngestRun{
		RunID:      runID,
		Source:     source,
		IndexName:  s.opts.Index,
		ChunkCount: chunks,
		DurationMS: elapsed.Milliseconds(),
		Status:     model.RunStatusSucceeded,
	}
	status := metrics.StatusSucceeded
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
		status = metrics.StatusFailed
		log.Error("ingestion failed", "error", runErr)
	} else {
		log.Info("ingestion finished", "chunks", chunks, "duration", elapsed)
	}
	s.metrics.ObserveIngest(status, chunks, elapsed)

	if s.runs != nil {
		if err := s.runs.Create(run); err != nil {
			log.Warn("persist ingest run failed", "error", err)
		}
	}
	return runID
}
