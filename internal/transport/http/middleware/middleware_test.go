package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/logger"
	"docqa/internal/pkg/jwtutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.GET("/private", AuthJWT("secret"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsernameKey))
	})
	return r
}

func TestAuthJWT(t *testing.T) {
	t.Run("Should pass a valid bearer token", func(t *testing.T) {
		token, err := jwtutil.GenerateToken("secret", time.Minute, "admin")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		newAuthRouter().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin", rec.Body.String())
	})

	t.Run("Should reject missing and malformed headers", func(t *testing.T) {
		for _, header := range []string{"", "Basic abc", "Bearer not-a-token"} {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			newAuthRouter().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
			assert.Contains(t, rec.Body.String(), `"code":40100`)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Run("Should propagate the request id and log through the context", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := logger.TestConfig()
		cfg.Output = &buf
		cfg.Level = logger.InfoLevel

		r := gin.New()
		r.Use(RequestLogger(logger.NewLogger(cfg)))
		r.GET("/ping", func(c *gin.Context) {
			logger.FromContext(c.Request.Context()).Info("inside handler")
			c.Status(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
		out := buf.String()
		assert.Contains(t, out, "inside handler")
		assert.Contains(t, out, "request completed")
		assert.Contains(t, out, "req-123")
	})
}
