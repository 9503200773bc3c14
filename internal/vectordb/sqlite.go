package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// sqliteStore keeps records in a local SQLite file. Vectors are stored as
// JSON and scored in process.
type sqliteStore struct {
	db        *sql.DB
	index     string
	namespace string
	dimension int
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS records (
	index_name TEXT NOT NULL,
	namespace TEXT NOT NULL DEFAULT '',
	id TEXT NOT NULL,
	document TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	embedding TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (index_name, namespace, id)
)`

func newSQLiteStore(ctx context.Context, cfg *Config) (Store, error) {
	if dir := filepath.Dir(cfg.DSN); dir != "" && cfg.DSN != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &sqliteStore{
		db:        db,
		index:     cfg.Index,
		namespace: cfg.Namespace,
		dimension: cfg.Dimension,
	}, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	const stmt = `INSERT INTO records (index_name, namespace, id, document, metadata, embedding, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (index_name, namespace, id) DO UPDATE SET
	document = excluded.document,
	metadata = excluded.metadata,
	embedding = excluded.embedding,
	updated_at = CURRENT_TIMESTAMP`
	for _, rec := range records {
		if err = checkDimension(s.dimension, rec.Embedding); err != nil {
			return fmt.Errorf("sqlite: record %q: %w", rec.ID, err)
		}
		var meta, vec []byte
		if meta, err = json.Marshal(cloneMetadata(rec.Metadata)); err != nil {
			return fmt.Errorf("sqlite: marshal metadata: %w", err)
		}
		if vec, err = json.Marshal(rec.Embedding); err != nil {
			return fmt.Errorf("sqlite: marshal embedding: %w", err)
		}
		if _, err = tx.ExecContext(ctx, stmt, s.index, s.namespace, rec.ID, rec.Text, string(meta), string(vec)); err != nil {
			return fmt.Errorf("sqlite: upsert %q: %w", rec.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *sqliteStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(s.dimension, query); err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	where, args := s.metadataClause(opts.Filters)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document, metadata, embedding FROM records WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, text, rawMeta, rawVec string
		if err := rows.Scan(&id, &text, &rawMeta, &rawVec); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(rawVec), &vec); err != nil || len(vec) != len(query) {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			return nil, fmt.Errorf("sqlite: decode metadata for %q: %w", id, err)
		}
		matches = append(matches, Match{ID: id, Score: cosine(query, vec), Text: text, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return rankMatches(matches, searchLimit(opts.TopK)), nil
}

func (s *sqliteStore) Delete(ctx context.Context, filter Filter) error {
	if filter.Empty() {
		return nil
	}
	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		args := []any{s.index, s.namespace}
		for _, id := range filter.IDs {
			args = append(args, id)
		}
		stmt := "DELETE FROM records WHERE index_name = ? AND namespace = ? AND id IN (" + placeholders + ")"
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("sqlite: delete ids: %w", err)
		}
	}
	if len(filter.Metadata) > 0 {
		where, args := s.metadataClause(filter.Metadata)
		if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE "+where, args...); err != nil {
			return fmt.Errorf("sqlite: delete by metadata: %w", err)
		}
	}
	if filter.IDPrefix != "" {
		stmt := "DELETE FROM records WHERE index_name = ? AND namespace = ? AND substr(id, 1, ?) = ?"
		if _, err := s.db.ExecContext(ctx, stmt, s.index, s.namespace, len(filter.IDPrefix), filter.IDPrefix); err != nil {
			return fmt.Errorf("sqlite: delete by id prefix: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) metadataClause(filters map[string]string) (string, []any) {
	var b strings.Builder
	b.WriteString("index_name = ? AND namespace = ?")
	args := []any{s.index, s.namespace}
	for _, key := range sortedKeys(filters) {
		b.WriteString(" AND CAST(json_extract(metadata, ?) AS TEXT) = ?")
		args = append(args, fmt.Sprintf("$.%q", key), filters[key])
	}
	return b.String(), args
}

func (s *sqliteStore) Close(context.Context) error {
	return s.db.Close()
}
