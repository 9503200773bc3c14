package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "docqa/internal/app"
	"docqa/internal/bootstrap"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestLogger(app.Logger),
		gin.Recovery(),
		app.Metrics.GinMiddleware(),
	)
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	var authService *appsvc.AuthService
	if app.Config.Auth.Enabled {
		authService = appsvc.NewAuthService(
			app.Config.Auth.AdminUsername,
			app.Config.Auth.AdminPasswordHash,
			app.Config.Auth.JWTSecret,
			time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
		)
	}
	authHandler := handler.NewAuthHandler(authService)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", authHandler.Token)

	pipelines := v1.Group("")
	if app.Config.Auth.Enabled {
		pipelines.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	}
	if app.Ingest != nil {
		ingestHandler := handler.NewIngestHandler(app.Ingest, app.Config.Ingest.SourcePath)
		pipelines.POST("/ingest", ingestHandler.Ingest)
	}
	if app.Query != nil {
		queryHandler := handler.NewQueryHandler(app.Query)
		pipelines.POST("/query", queryHandler.Ask)
	}

	if app.QueryRecords != nil || app.IngestRuns != nil {
		var (
			queries handler.QueryHistory
			runs    handler.IngestHistory
		)
		if app.QueryRecords != nil {
			queries = app.QueryRecords
		}
		if app.IngestRuns != nil {
			runs = app.IngestRuns
		}
		historyHandler := handler.NewHistoryHandler(queries, runs)
		pipelines.GET("/queries", historyHandler.ListQueries)
		pipelines.GET("/queries/:run_id", historyHandler.GetQuery)
		pipelines.GET("/ingest/runs", historyHandler.ListIngestRuns)
	}

	return router
}
