package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
	"docqa/internal/transport/http/response"
)

type fakeQueryHistory struct {
	records map[string]*model.QueryRecord
	limit   int
	err     error
}

func (f *fakeQueryHistory) GetByRunID(runID string) (*model.QueryRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[runID], nil
}

func (f *fakeQueryHistory) ListRecent(limit int) ([]model.QueryRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.QueryRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, *r)
	}
	return out, nil
}

type fakeIngestHistory struct {
	source string
	limit  int
	recent bool
}

func (f *fakeIngestHistory) ListRecent(limit int) ([]model.IngestRun, error) {
	f.recent, f.limit = true, limit
	return []model.IngestRun{{RunID: "r1", Source: "a.txt"}, {RunID: "r2", Source: "b.txt"}}, nil
}

func (f *fakeIngestHistory) ListBySource(source string, limit int) ([]model.IngestRun, error) {
	f.source, f.limit = source, limit
	return []model.IngestRun{{RunID: "r1", Source: source}}, nil
}

func historyRouter(h *HistoryHandler) *gin.Engine {
	r := gin.New()
	r.GET("/queries", h.ListQueries)
	r.GET("/queries/:run_id", h.GetQuery)
	r.GET("/ingest/runs", h.ListIngestRuns)
	return r
}

func TestHistoryHandler(t *testing.T) {
	sky := &model.QueryRecord{RunID: "run-1", Question: "What color is the sky?", Answer: "Blue.", ChunkIDs: "a,b", TopK: 3}

	t.Run("Should return a query record by run id", func(t *testing.T) {
		h := NewHistoryHandler(&fakeQueryHistory{records: map[string]*model.QueryRecord{"run-1": sky}}, nil)
		rec := serve(historyRouter(h), httptest.NewRequest(http.MethodGet, "/queries/run-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var out struct {
			Data model.QueryRecord `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "run-1", out.Data.RunID)
		assert.Equal(t, "Blue.", out.Data.Answer)
		assert.Equal(t, "a,b", out.Data.ChunkIDs)
	})

	t.Run("Should answer 404 for an unknown run id", func(t *testing.T) {
		h := NewHistoryHandler(&fakeQueryHistory{}, nil)
		rec := serve(historyRouter(h), httptest.NewRequest(http.MethodGet, "/queries/missing", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, response.CodeRecordNotFound, decode(t, rec).Code)
	})

	t.Run("Should hide repository errors", func(t *testing.T) {
		h := NewHistoryHandler(&fakeQueryHistory{err: errors.New("dial tcp: refused")}, nil)
		rec := serve(historyRouter(h), httptest.NewRequest(http.MethodGet, "/queries/run-1", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "get query record failed", decode(t, rec).Message)
	})

	t.Run("Should pass the limit to recent queries", func(t *testing.T) {
		f := &fakeQueryHistory{records: map[string]*model.QueryRecord{"run-1": sky}}
		rec := serve(historyRouter(NewHistoryHandler(f, nil)), httptest.NewRequest(http.MethodGet, "/queries?limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, f.limit)

		rec = serve(historyRouter(NewHistoryHandler(f, nil)), httptest.NewRequest(http.MethodGet, "/queries?limit=abc", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, f.limit)
	})

	t.Run("Should list ingest runs by source when asked", func(t *testing.T) {
		f := &fakeIngestHistory{}
		rec := serve(historyRouter(NewHistoryHandler(nil, f)), httptest.NewRequest(http.MethodGet, "/ingest/runs?source=data/a.txt&limit=2", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "data/a.txt", f.source)
		assert.Equal(t, 2, f.limit)
		assert.False(t, f.recent)

		var out struct {
			Data []model.IngestRun `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out.Data, 1)
		assert.Equal(t, "data/a.txt", out.Data[0].Source)
	})

	t.Run("Should list recent ingest runs without a source", func(t *testing.T) {
		f := &fakeIngestHistory{}
		rec := serve(historyRouter(NewHistoryHandler(nil, f)), httptest.NewRequest(http.MethodGet, "/ingest/runs", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, f.recent)
	})

	t.Run("Should answer 503 when a history table is disabled", func(t *testing.T) {
		r := historyRouter(NewHistoryHandler(nil, nil))
		for _, target := range []string{"/queries", "/queries/run-1", "/ingest/runs"} {
			rec := serve(r, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
			assert.Equal(t, response.CodeDependencyUnavailable, decode(t, rec).Code, target)
		}
	})
}
