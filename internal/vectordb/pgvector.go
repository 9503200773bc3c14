package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// pgPool is the subset of pgxpool.Pool the store needs.
type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type pgVectorStore struct {
	pool       pgPool
	table      string
	tableIdent string
	namespace  string
	dimension  int
}

func newPGVectorStore(ctx context.Context, cfg *Config) (Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	store := newPGVectorStoreWithPool(pool, cfg)
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPGVectorStoreWithPool(pool pgPool, cfg *Config) *pgVectorStore {
	table := pgTableName(cfg.Index)
	return &pgVectorStore{
		pool:       pool,
		table:      table,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		namespace:  cfg.Namespace,
		dimension:  cfg.Dimension,
	}
}

func pgTableName(index string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(index) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + "_chunks"
}

func (p *pgVectorStore) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL,
	namespace TEXT NOT NULL DEFAULT '',
	document TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, id)
)`, p.tableIdent, p.dimension)
	if _, err := p.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	return nil
}

func (p *pgVectorStore) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, namespace, document, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (namespace, id) DO UPDATE SET
	document = EXCLUDED.document,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding,
	updated_at = now()`, p.tableIdent)
	for _, rec := range records {
		if err = checkDimension(p.dimension, rec.Embedding); err != nil {
			return fmt.Errorf("pgvector: record %q: %w", rec.ID, err)
		}
		meta, marshalErr := json.Marshal(cloneMetadata(rec.Metadata))
		if marshalErr != nil {
			err = marshalErr
			return fmt.Errorf("pgvector: marshal metadata: %w", err)
		}
		if _, err = tx.Exec(ctx, stmt, rec.ID, p.namespace, rec.Text, meta, pgvector.NewVector(rec.Embedding)); err != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", rec.ID, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

func (p *pgVectorStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(p.dimension, query); err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	args := []any{pgvector.NewVector(query), p.namespace}
	var b strings.Builder
	b.WriteString("SELECT id, document, metadata, 1 - (embedding <=> $1) AS score FROM ")
	b.WriteString(p.tableIdent)
	b.WriteString(" WHERE namespace = $2")
	for _, key := range sortedKeys(opts.Filters) {
		args = append(args, key, opts.Filters[key])
		fmt.Fprintf(&b, " AND metadata ->> $%d = $%d", len(args)-1, len(args))
	}
	args = append(args, searchLimit(opts.TopK))
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1 ASC, id ASC LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m       Match
			rawMeta []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &rawMeta, &m.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return matches, nil
}

func (p *pgVectorStore) Delete(ctx context.Context, filter Filter) error {
	if filter.Empty() {
		return nil
	}
	if err := requireMetadata(filter); err != nil {
		return fmt.Errorf("pgvector: %w", err)
	}
	var errs []error
	if len(filter.IDs) > 0 {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)", p.tableIdent)
		if _, err := p.pool.Exec(ctx, stmt, p.namespace, filter.IDs); err != nil {
			errs = append(errs, fmt.Errorf("pgvector: delete ids: %w", err))
		}
	}
	if len(filter.Metadata) > 0 {
		args := []any{p.namespace}
		var b strings.Builder
		fmt.Fprintf(&b, "DELETE FROM %s WHERE namespace = $1", p.tableIdent)
		for _, key := range sortedKeys(filter.Metadata) {
			args = append(args, key, filter.Metadata[key])
			fmt.Fprintf(&b, " AND metadata ->> $%d = $%d", len(args)-1, len(args))
		}
		if _, err := p.pool.Exec(ctx, b.String(), args...); err != nil {
			errs = append(errs, fmt.Errorf("pgvector: delete by metadata: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *pgVectorStore) Close(context.Context) error {
	p.pool.Close()
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
