package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/document"
	"docqa/internal/transport/http/response"
)

type Ingester interface {
	Ingest(ctx context.Context, path string) (*app.IngestResult, error)
	IngestReader(ctx context.Context, source string, r io.Reader) (*app.IngestResult, error)
}

// IngestHandler runs the ingestion pipeline for a server-side file under
// baseDir or for an uploaded file.
type IngestHandler struct {
	ingester    Ingester
	baseDir     string
	defaultPath string
}

type IngestRequest struct {
	Path string `json:"path" binding:"max=512"`
}

func NewIngestHandler(ingester Ingester, defaultPath string) *IngestHandler {
	return &IngestHandler{
		ingester:    ingester,
		baseDir:     filepath.Dir(defaultPath),
		defaultPath: defaultPath,
	}
}

func (h *IngestHandler) Ingest(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.ingestUpload(c)
		return
	}

	var req IngestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}
	target, ok := h.resolve(req.Path)
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "path must stay inside "+h.baseDir)
		return
	}
	result, err := h.ingester.Ingest(c.Request.Context(), target)
	if err != nil {
		writeIngestError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *IngestHandler) ingestUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open file failed")
		return
	}
	defer f.Close()

	source := path.Join("upload", filepath.Base(file.Filename))
	result, err := h.ingester.IngestReader(c.Request.Context(), source, f)
	if err != nil {
		writeIngestError(c, err)
		return
	}
	response.OK(c, result)
}

// resolve maps a requested path onto baseDir and refuses anything that
// escapes it.
func (h *IngestHandler) resolve(requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return h.defaultPath, true
	}
	target := filepath.Join(h.baseDir, filepath.Clean("/"+requested))
	rel, err := filepath.Rel(h.baseDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func writeIngestError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, os.ErrNotExist):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
	case errors.Is(err, app.ErrEmptyDocument),
		errors.Is(err, document.ErrUnsupportedType),
		errors.Is(err, document.ErrInvalidEncoding):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeUnprocessableDoc, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
	}
}
