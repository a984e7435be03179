package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/health"
)

// RegisterHealthRoutes: 상태 확인 라우트를 등록합니다.
func RegisterHealthRoutes(router *gin.Engine, deps health.Deps) {
	router.GET("/health", func(c *gin.Context) {
		// Liveness: 외부 의존성(Valkey/DB) 상태로 다운 판정되지 않도록 shallow로 유지합니다.
		payload := health.Collect(c.Request.Context(), deps, false)
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := health.Collect(c.Request.Context(), deps, true)
		status := http.StatusOK
		if payload.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})
}
