package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/health"
	"github.com/park285/svalinn-gateway-go/internal/middleware"
)

// NewRouter 는 HTTP 라우터를 구성한다.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	healthDeps health.Deps,
	analyzeHandler *AnalyzeHandler,
	normalizeHandler *NormalizeHandler,
	policyHandler *PolicyHandler,
	metricsHandler *MetricsHandler,
) *gin.Engine {
	setGinMode(cfg.Logging.Level)

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		gin.Recovery(),
		middleware.APIKeyAuth(cfg),
		middleware.RateLimit(cfg),
	)
	if cfg.HTTP.GzipEnabled {
		router.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	RegisterHealthRoutes(router, healthDeps)
	analyzeHandler.RegisterRoutes(router)
	normalizeHandler.RegisterRoutes(router)
	policyHandler.RegisterRoutes(router)
	metricsHandler.RegisterRoutes(router)

	return router
}

func setGinMode(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
