package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/audit"
	"github.com/park285/svalinn-gateway-go/internal/httperror"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
)

// DecisionReader 는 최근 감사 기록 조회 인터페이스다.
type DecisionReader interface {
	RecentDecisions(ctx context.Context, limit int) ([]audit.DecisionRecord, error)
}

// MetricsHandler 는 운영 지표/감사 조회 API 핸들러다.
type MetricsHandler struct {
	metrics   *metrics.Store
	decisions DecisionReader
}

// NewMetricsHandler 는 지표 핸들러를 생성한다.
func NewMetricsHandler(m *metrics.Store, decisions DecisionReader) *MetricsHandler {
	return &MetricsHandler{metrics: m, decisions: decisions}
}

// RegisterRoutes 는 지표 라우트를 등록한다.
func (h *MetricsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/metrics", h.handleSnapshot)
	router.GET("/api/decisions", h.handleDecisions)
}

func (h *MetricsHandler) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

func (h *MetricsHandler) handleDecisions(c *gin.Context) {
	if h.decisions == nil {
		c.JSON(http.StatusOK, gin.H{"decisions": []any{}, "enabled": false})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(c, httperror.NewInvalidInput("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	records, err := h.decisions.RecentDecisions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records, "enabled": true})
}
