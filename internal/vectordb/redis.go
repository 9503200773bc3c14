package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisMetadataAttr = "_metadata"

// redisIndexedKeys are the metadata keys mirrored into member sets so
// records can be deleted by them. VSIM cannot enumerate a filter.
var redisIndexedKeys = []string{"source", "document_id"}

// redisStore keeps records in a Redis vector set (VADD/VSIM). Text and
// metadata live in the element attributes; each indexed metadata value also
// owns a plain set of the element names carrying it.
type redisStore struct {
	client    *redis.Client
	setKey    string
	dimension int
}

func newRedisStore(ctx context.Context, cfg *Config) (Store, error) {
	opts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("redis vector store: invalid url: %w", err)
	}
	opts.Protocol = 3
	opts.UnstableResp3 = true
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis vector store: ping failed: %w", err)
	}
	return &redisStore{
		client:    client,
		setKey:    redisSetKey(cfg.Index, cfg.Namespace),
		dimension: cfg.Dimension,
	}, nil
}

func redisSetKey(index, namespace string) string {
	key := "docqa:vectors:" + index
	if namespace != "" {
		key += ":" + namespace
	}
	return key
}

func (r *redisStore) membersKey(key, value string) string {
	return r.setKey + ":members:" + key + ":" + value
}

// memberKeys lists the member sets a record with this metadata belongs to.
func (r *redisStore) memberKeys(meta map[string]any) []string {
	var keys []string
	for _, key := range redisIndexedKeys {
		if val, ok := meta[key]; ok {
			keys = append(keys, r.membersKey(key, fmt.Sprint(val)))
		}
	}
	return keys
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// redisAttributes stores the text, the full metadata and a flat copy of
// each metadata value so FILTER expressions can address them.
func redisAttributes(rec Record) map[string]any {
	attrs := make(map[string]any, len(rec.Metadata)+2)
	for key, val := range rec.Metadata {
		attrs[key] = fmt.Sprint(val)
	}
	attrs[MetadataText] = rec.Text
	attrs[redisMetadataAttr] = cloneMetadata(rec.Metadata)
	return attrs
}

func (r *redisStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, rec := range records {
		if err := checkDimension(r.dimension, rec.Embedding); err != nil {
			return fmt.Errorf("redis: record %q: %w", rec.ID, err)
		}
		pipe.VAdd(ctx, r.setKey, rec.ID, &redis.VectorValues{Val: toFloat64(rec.Embedding)})
		pipe.VSetAttr(ctx, r.setKey, rec.ID, redisAttributes(rec))
		for _, key := range r.memberKeys(rec.Metadata) {
			pipe.SAdd(ctx, key, rec.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert: %w", err)
	}
	return nil
}

func (r *redisStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(r.dimension, query); err != nil {
		return nil, fmt.Errorf("redis: query: %w", err)
	}
	args := &redis.VSimArgs{Count: int64(searchLimit(opts.TopK))}
	if filter := redisFilter(opts.Filters); filter != "" {
		args.Filter = filter
	}
	results, err := r.client.VSimWithArgsWithScores(ctx, r.setKey, &redis.VectorValues{Val: toFloat64(query)}, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	attrCmds := make([]*redis.StringCmd, len(results))
	for i, res := range results {
		attrCmds[i] = pipe.VGetAttr(ctx, r.setKey, res.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: fetch attributes: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for i, res := range results {
		raw, err := attrCmds[i].Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis: attributes for %q: %w", res.Name, err)
		}
		var attrs map[string]any
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("redis: decode attributes for %q: %w", res.Name, err)
		}
		text, _ := attrs[MetadataText].(string)
		meta, _ := attrs[redisMetadataAttr].(map[string]any)
		matches = append(matches, Match{ID: res.Name, Score: res.Score, Text: text, Metadata: meta})
	}
	return matches, nil
}

func (r *redisStore) Delete(ctx context.Context, filter Filter) error {
	if err := requireMetadata(filter); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	ids := append([]string(nil), filter.IDs...)
	if len(filter.Metadata) > 0 {
		found, err := r.idsByMetadata(ctx, filter.Metadata)
		if err != nil {
			return err
		}
		ids = append(ids, found...)
	}
	if len(ids) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	attrCmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		attrCmds[i] = pipe.VGetAttr(ctx, r.setKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: fetch attributes: %w", err)
	}

	pipe = r.client.Pipeline()
	for i, id := range ids {
		pipe.VRem(ctx, r.setKey, id)
		raw, err := attrCmds[i].Result()
		if err != nil {
			continue
		}
		var attrs map[string]any
		if json.Unmarshal([]byte(raw), &attrs) != nil {
			continue
		}
		meta, _ := attrs[redisMetadataAttr].(map[string]any)
		for _, key := range r.memberKeys(meta) {
			pipe.SRem(ctx, key, id)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}
	return nil
}

// idsByMetadata intersects the member sets of every filter value. Only
// redisIndexedKeys can be resolved.
func (r *redisStore) idsByMetadata(ctx context.Context, metadata map[string]string) ([]string, error) {
	keys := make([]string, 0, len(metadata))
	for _, key := range sortedKeys(metadata) {
		if !slices.Contains(redisIndexedKeys, key) {
			return nil, fmt.Errorf("redis: %w: metadata key %q is not indexed", ErrUnsupportedFilter, key)
		}
		keys = append(keys, r.membersKey(key, metadata[key]))
	}
	ids, err := r.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: metadata lookup: %w", err)
	}
	return ids, nil
}

func (r *redisStore) Close(context.Context) error {
	return r.client.Close()
}

func redisFilter(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, key := range sortedKeys(filters) {
		parts = append(parts, fmt.Sprintf(".%s == %s", key, strconv.Quote(filters[key])))
	}
	return strings.Join(parts, " and ")
}
