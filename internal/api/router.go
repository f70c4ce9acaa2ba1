package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/api/handler"
	"github.com/qs3c/codeforge_server/internal/api/middleware"
	"github.com/qs3c/codeforge_server/internal/pkg/metrics"
)

type Router struct {
	generationHandler *handler.GenerationHandler
	documentHandler   *handler.DocumentHandler
	quotaHandler      *handler.QuotaHandler
	websocketHandler  *handler.WebSocketHandler
	quotaChecker      middleware.QuotaChecker
	cfg               *config.Config
}

func NewRouter(
	generationHandler *handler.GenerationHandler,
	documentHandler *handler.DocumentHandler,
	quotaHandler *handler.QuotaHandler,
	websocketHandler *handler.WebSocketHandler,
	quotaChecker middleware.QuotaChecker,
	cfg *config.Config,
) *Router {
	return &Router{
		generationHandler: generationHandler,
		documentHandler:   documentHandler,
		quotaHandler:      quotaHandler,
		websocketHandler:  websocketHandler,
		quotaChecker:      quotaChecker,
		cfg:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	limiter := middleware.NewRateLimiter(r.cfg.Server.RateLimit, r.cfg.Server.RateBurst)

	api := engine.Group("/api/v1")
	{
		// WebSocket 通过 query token 认证
		api.GET("/ws", r.websocketHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			generations := authenticated.Group("/generations")
			{
				generations.POST("", limiter.Middleware(), middleware.QuotaCheck(r.quotaChecker), r.generationHandler.Create)
				generations.GET("", r.generationHandler.List)
				generations.GET("/:id", r.generationHandler.Get)
			}

			docs := authenticated.Group("/docs")
			{
				docs.POST("/ingest", r.documentHandler.Ingest)
				docs.GET("/chunks/:id", r.documentHandler.GetChunk)
			}

			authenticated.GET("/user/quota", r.quotaHandler.GetQuota)
		}
	}

	return engine
}
