package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/model"
	"docqa/internal/transport/http/response"
)

type QueryHistory interface {
	GetByRunID(runID string) (*model.QueryRecord, error)
	ListRecent(limit int) ([]model.QueryRecord, error)
}

type IngestHistory interface {
	ListRecent(limit int) ([]model.IngestRun, error)
	ListBySource(source string, limit int) ([]model.IngestRun, error)
}

// HistoryHandler serves the query records and ingest runs kept in MySQL.
// Either side may be nil when its table is not configured.
type HistoryHandler struct {
	queries QueryHistory
	runs    IngestHistory
}

func NewHistoryHandler(queries QueryHistory, runs IngestHistory) *HistoryHandler {
	return &HistoryHandler{queries: queries, runs: runs}
}

func (h *HistoryHandler) GetQuery(c *gin.Context) {
	if h.queries == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeDependencyUnavailable, "query history is disabled")
		return
	}
	runID := strings.TrimSpace(c.Param("run_id"))
	if runID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid run_id")
		return
	}

	record, err := h.queries.GetByRunID(runID)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get query record failed")
		return
	}
	if record == nil {
		response.Error(c, http.StatusNotFound, response.CodeRecordNotFound, "query record not found")
		return
	}
	response.OK(c, record)
}

func (h *HistoryHandler) ListQueries(c *gin.Context) {
	if h.queries == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeDependencyUnavailable, "query history is disabled")
		return
	}
	records, err := h.queries.ListRecent(queryLimit(c))
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list query records failed")
		return
	}
	response.OK(c, records)
}

// ListIngestRuns lists the newest runs, narrowed to one source when the
// source query parameter is present.
func (h *HistoryHandler) ListIngestRuns(c *gin.Context) {
	if h.runs == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeDependencyUnavailable, "ingest history is disabled")
		return
	}
	limit := queryLimit(c)

	var (
		runs []model.IngestRun
		err  error
	)
	if source := strings.TrimSpace(c.Query("source")); source != "" {
		runs, err = h.runs.ListBySource(source, limit)
	} else {
		runs, err = h.runs.ListRecent(limit)
	}
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list ingest runs failed")
		return
	}
	response.OK(c, runs)
}

// queryLimit reads ?limit=; the repositories clamp out-of-range values.
func queryLimit(c *gin.Context) int {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	return limit
}
