package vectordb

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	pineconeDefaultAPIVersion = "2024-07"
	pineconeUpsertLimit       = 100
	pineconeDeleteLimit       = 1000
	pineconeListLimit         = 100
)

// pineconeStore talks to a Pinecone index over its REST API. The control
// plane resolves the index host; all record traffic goes to that host.
type pineconeStore struct {
	data      *resty.Client
	index     string
	namespace string
	dimension int
}

type pineconeIndex struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeListResponse struct {
	Vectors []struct {
		ID string `json:"id"`
	} `json:"vectors"`
	Pagination *struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
	Namespace string `json:"namespace"`
}

func newPineconeClient(cfg *Config, baseURL string) *resty.Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	version := cfg.APIVersion
	if version == "" {
		version = pineconeDefaultAPIVersion
	}
	return resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetTimeout(cfg.timeout()).
		SetHeader("Api-Key", cfg.APIKey).
		SetHeader("X-Pinecone-API-Version", version).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

func newPineconeStore(ctx context.Context, cfg *Config) (Store, error) {
	host := cfg.Host
	if host == "" {
		idx, err := describePineconeIndex(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if idx.Dimension != 0 && idx.Dimension != cfg.Dimension {
			return nil, fmt.Errorf("%w: pinecone index %q has dimension %d, embedder produces %d",
				ErrDimensionMismatch, cfg.Index, idx.Dimension, cfg.Dimension)
		}
		host = idx.Host
	}
	if host == "" {
		return nil, fmt.Errorf("%w: pinecone index %q has no host", ErrInvalidConfig, cfg.Index)
	}
	return &pineconeStore{
		data:      newPineconeClient(cfg, normalizeHost(host)),
		index:     cfg.Index,
		namespace: cfg.Namespace,
		dimension: cfg.Dimension,
	}, nil
}

func describePineconeIndex(ctx context.Context, cfg *Config) (*pineconeIndex, error) {
	var idx pineconeIndex
	resp, err := newPineconeClient(cfg, strings.TrimRight(cfg.ControlURL, "/")).R().
		SetContext(ctx).
		SetPathParam("name", cfg.Index).
		SetResult(&idx).
		Get("/indexes/{name}")
	if err := pineconeError("describe index", resp, err); err != nil {
		return nil, err
	}
	return &idx, nil
}

func normalizeHost(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

func pineconeError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("pinecone: %s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("pinecone: %s: status %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Upsert writes records in request-sized groups; the data plane caps the
// number of vectors per call.
func (p *pineconeStore) Upsert(ctx context.Context, records []Record) error {
	vectors := make([]pineconeVector, 0, len(records))
	for _, rec := range records {
		if err := checkDimension(p.dimension, rec.Embedding); err != nil {
			return fmt.Errorf("pinecone: record %q: %w", rec.ID, err)
		}
		meta := cloneMetadata(rec.Metadata)
		meta[MetadataText] = rec.Text
		vectors = append(vectors, pineconeVector{ID: rec.ID, Values: rec.Embedding, Metadata: meta})
	}
	for start := 0; start < len(vectors); start += pineconeUpsertLimit {
		end := min(start+pineconeUpsertLimit, len(vectors))
		resp, err := p.data.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"vectors":   vectors[start:end],
				"namespace": p.namespace,
			}).
			Post("/vectors/upsert")
		if err := pineconeError("upsert", resp, err); err != nil {
			return err
		}
	}
	return nil
}

func (p *pineconeStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(p.dimension, query); err != nil {
		return nil, fmt.Errorf("pinecone: query: %w", err)
	}
	body := map[string]any{
		"vector":          query,
		"topK":            searchLimit(opts.TopK),
		"includeMetadata": true,
		"includeValues":   false,
		"namespace":       p.namespace,
	}
	if filter := pineconeFilter(opts.Filters); filter != nil {
		body["filter"] = filter
	}
	var out pineconeQueryResponse
	resp, err := p.data.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/query")
	if err := pineconeError("query", resp, err); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		text, meta := splitText(m.Metadata)
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Text: text, Metadata: meta})
	}
	return matches, nil
}

// Delete removes records by ID. Serverless indexes reject deletes by
// metadata filter, so a filter carrying IDPrefix is resolved by listing the
// IDs under that prefix first.
func (p *pineconeStore) Delete(ctx context.Context, filter Filter) error {
	if filter.Empty() {
		return nil
	}
	ids := append([]string(nil), filter.IDs...)
	if filter.IDPrefix != "" {
		listed, err := p.listIDs(ctx, filter.IDPrefix)
		if err != nil {
			return err
		}
		ids = append(ids, listed...)
	} else if len(filter.Metadata) > 0 {
		resp, err := p.data.R().
			SetContext(ctx).
			SetBody(map[string]any{"filter": pineconeFilter(filter.Metadata), "namespace": p.namespace}).
			Post("/vectors/delete")
		if err := pineconeError("delete by filter", resp, err); err != nil {
			return err
		}
	}
	for start := 0; start < len(ids); start += pineconeDeleteLimit {
		end := min(start+pineconeDeleteLimit, len(ids))
		resp, err := p.data.R().
			SetContext(ctx).
			SetBody(map[string]any{"ids": ids[start:end], "namespace": p.namespace}).
			Post("/vectors/delete")
		if err := pineconeError("delete ids", resp, err); err != nil {
			return err
		}
	}
	return nil
}

func (p *pineconeStore) listIDs(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	token := ""
	for {
		var out pineconeListResponse
		req := p.data.R().
			SetContext(ctx).
			SetQueryParam("prefix", prefix).
			SetQueryParam("namespace", p.namespace).
			SetQueryParam("limit", strconv.Itoa(pineconeListLimit)).
			SetResult(&out)
		if token != "" {
			req.SetQueryParam("paginationToken", token)
		}
		resp, err := req.Get("/vectors/list")
		if err := pineconeError("list ids", resp, err); err != nil {
			return nil, err
		}
		for _, v := range out.Vectors {
			ids = append(ids, v.ID)
		}
		if out.Pagination == nil || out.Pagination.Next == "" {
			return ids, nil
		}
		token = out.Pagination.Next
	}
}

func (p *pineconeStore) Close(context.Context) error {
	return nil
}

func pineconeFilter(filters map[string]string) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]any, len(filters))
	for key, val := range filters {
		out[key] = map[string]any{"$eq": val}
	}
	return out
}
