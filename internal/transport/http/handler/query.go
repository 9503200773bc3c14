package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

type Asker interface {
	Ask(ctx context.Context, question string) (*app.QueryResult, error)
}

type QueryHandler struct {
	asker Asker
}

type QueryRequest struct {
	Question string `json:"question" binding:"max=2000"`
}

func NewQueryHandler(asker Asker) *QueryHandler {
	return &QueryHandler{asker: asker}
}

func (h *QueryHandler) Ask(c *gin.Context) {
	var req QueryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	result, err := h.asker.Ask(c.Request.Context(), req.Question)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNoChunks):
			response.Error(c, http.StatusNotFound, response.CodeNoChunks, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		}
		return
	}
	response.OK(c, result)
}
