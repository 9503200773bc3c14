package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/vectordb"
)

type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryRecordPublisher hands finished queries to the history pipeline.
type QueryRecordPublisher interface {
	Publish(ctx context.Context, record model.QueryRecord) error
}

type QueryOptions struct {
	Index           string
	TopK            int
	DefaultQuestion string
}

type QueryService struct {
	embedder  embeddings.Embedder
	store     vectordb.Store
	generator AnswerGenerator
	prompt    *PromptTemplate
	opts      QueryOptions
	publisher QueryRecordPublisher
	metrics   *metrics.Metrics
}

type QueryResult struct {
	RunID    string           `json:"run_id"`
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Matches  []vectordb.Match `json:"matches"`
	Prompt   string           `json:"-"`
}

// NewQueryService wires the query pipeline. publisher and m may be nil.
func NewQueryService(
	embedder embeddings.Embedder,
	store vectordb.Store,
	generator AnswerGenerator,
	prompt *PromptTemplate,
	opts QueryOptions,
	publisher QueryRecordPublisher,
	m *metrics.Metrics,
) *QueryService {
	return &QueryService{
		embedder:  embedder,
		store:     store,
		generator: generator,
		prompt:    prompt,
		opts:      opts,
		publisher: publisher,
		metrics:   m,
	}
}

// Ask answers question from the top-k chunks in the index. An empty question
// falls back to the configured default.
func (s *QueryService) Ask(ctx context.Context, question string) (*QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = s.opts.DefaultQuestion
	}
	if question == "" {
		return nil, ErrInvalidInput
	}
	start := time.Now()
	result, err := s.ask(ctx, question)
	elapsed := time.Since(start)

	log := logger.FromContext(ctx).With("index", s.opts.Index)
	if err != nil {
		s.metrics.ObserveQuery(metrics.StatusFailed, 0, elapsed)
		log.Error("query failed", "error", err)
		return nil, err
	}
	result.RunID = uuid.NewString()
	s.metrics.ObserveQuery(metrics.StatusSucceeded, len(result.Matches), elapsed)
	log.Info("query finished", "run_id", result.RunID, "matches", len(result.Matches), "duration", elapsed)
	s.publish(ctx, result, elapsed)
	return result, nil
}

func (s *QueryService) ask(ctx context.Context, question string) (*QueryResult, error) {
	vec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question failed: %w", err)
	}
	matches, err := s.store.Search(ctx, vec, vectordb.SearchOptions{TopK: s.opts.TopK})
	if err != nil {
		return nil, fmt.Errorf("search index failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: index %q", ErrNoChunks, s.opts.Index)
	}
	prompt, err := s.prompt.Render(question, matches)
	if err != nil {
		return nil, err
	}
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer question failed: %w", err)
	}
	return &QueryResult{
		Question: question,
		Answer:   answer,
		Matches:  matches,
		Prompt:   prompt,
	}, nil
}

func (s *QueryService) publish(ctx context.Context, result *QueryResult, elapsed time.Duration) {
	if s.publisher == nil {
		return
	}
	ids := make([]string, len(result.Matches))
	for i, m := range result.Matches {
		ids[i] = m.ID
	}
	record := model.QueryRecord{
		RunID:     result.RunID,
		IndexName: s.opts.Index,
		Question:  result.Question,
		Answer:    result.Answer,
		ChunkIDs:  strings.Join(ids, ","),
		TopK:      s.opts.TopK,
		LatencyMS: elapsed.Milliseconds(),
	}
	if err := s.publisher.Publish(ctx, record); err != nil {
		logger.FromContext(ctx).Warn("publish query record failed", "run_id", result.RunID, "error", err)
	}
}
