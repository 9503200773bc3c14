package vectordb

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// qdrantRecordID is the payload key holding the caller's record ID; Qdrant
// point IDs must be UUIDs or integers.
const qdrantRecordID = "record_id"

var qdrantIDSpace = uuid.MustParse("6f1c9c3e-4a57-4d0e-9a43-2c1f0b6a9d21")

type qdrantStore struct {
	client     *resty.Client
	collection string
	dimension  int
	metric     string
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
	Status any `json:"status"`
}

func newQdrantStore(ctx context.Context, cfg *Config) (Store, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	client := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.timeout()).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	collection := cfg.Index
	if cfg.Namespace != "" {
		collection = cfg.Index + "_" + cfg.Namespace
	}
	store := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  cfg.Dimension,
		metric:     qdrantMetric(cfg.Metric),
	}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func qdrantMetric(metric string) string {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "euclid", "euclidean", "l2":
		return "Euclid"
	case "dot", "dotproduct":
		return "Dot"
	default:
		return "Cosine"
	}
}

func qdrantPointID(recordID string) string {
	return uuid.NewSHA1(qdrantIDSpace, []byte(recordID)).String()
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	resp, err := q.client.R().
		SetContext(ctx).
		SetPathParam("collection", q.collection).
		Get("/collections/{collection}")
	if err != nil {
		return fmt.Errorf("qdrant: get collection: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return qdrantError("get collection", resp, nil)
	}
	resp, err = q.client.R().
		SetContext(ctx).
		SetPathParam("collection", q.collection).
		SetBody(map[string]any{
			"vectors": map[string]any{"size": q.dimension, "distance": q.metric},
		}).
		Put("/collections/{collection}")
	return qdrantError("create collection", resp, err)
}

func qdrantError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("qdrant: %s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("qdrant: %s: status %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func qdrantFilter(filters map[string]string) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	must := make([]any, 0, len(filters))
	for key, val := range filters {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": val},
		})
	}
	return map[string]any{"must": must}
}

func (q *qdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, 0, len(records))
	for _, rec := range records {
		if err := checkDimension(q.dimension, rec.Embedding); err != nil {
			return fmt.Errorf("qdrant: record %q: %w", rec.ID, err)
		}
		payload := cloneMetadata(rec.Metadata)
		payload[MetadataText] = rec.Text
		payload[qdrantRecordID] = rec.ID
		points = append(points, qdrantPoint{ID: qdrantPointID(rec.ID), Vector: rec.Embedding, Payload: payload})
	}
	resp, err := q.client.R().
		SetContext(ctx).
		SetPathParam("collection", q.collection).
		SetQueryParam("wait", "true").
		SetBody(map[string]any{"points": points}).
		Put("/collections/{collection}/points")
	return qdrantError("upsert", resp, err)
}

func (q *qdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(q.dimension, query); err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}
	body := map[string]any{
		"vector":       query,
		"limit":        searchLimit(opts.TopK),
		"with_payload": true,
	}
	if filter := qdrantFilter(opts.Filters); filter != nil {
		body["filter"] = filter
	}
	var out qdrantSearchResponse
	resp, err := q.client.R().
		SetContext(ctx).
		SetPathParam("collection", q.collection).
		SetBody(body).
		SetResult(&out).
		Post("/collections/{collection}/points/search")
	if err := qdrantError("search", resp, err); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(out.Result))
	for _, res := range out.Result {
		text, meta := splitText(res.Payload)
		id, _ := meta[qdrantRecordID].(string)
		if id == "" {
			id = fmt.Sprint(res.ID)
		}
		delete(meta, qdrantRecordID)
		matches = append(matches, Match{ID: id, Score: res.Score, Text: text, Metadata: meta})
	}
	return matches, nil
}

func (q *qdrantStore) Delete(ctx context.Context, filter Filter) error {
	if err := requireMetadata(filter); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			ids = append(ids, qdrantPointID(id))
		}
		if err := q.deletePoints(ctx, map[string]any{"points": ids}); err != nil {
			return err
		}
	}
	if f := qdrantFilter(filter.Metadata); f != nil {
		return q.deletePoints(ctx, map[string]any{"filter": f})
	}
	return nil
}

func (q *qdrantStore) deletePoints(ctx context.Context, selector map[string]any) error {
	resp, err := q.client.R().
		SetContext(ctx).
		SetPathParam("collection", q.collection).
		SetQueryParam("wait", "true").
		SetBody(selector).
		Post("/collections/{collection}/points/delete")
	return qdrantError("delete", resp, err)
}

func (q *qdrantStore) Close(context.Context) error {
	return nil
}
