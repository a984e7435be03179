package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/httperror"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
	"github.com/park285/svalinn-gateway-go/internal/middleware"
	"github.com/park285/svalinn-gateway-go/internal/pipeline"
	"github.com/park285/svalinn-gateway-go/internal/store"
)

// 요청 본문 최대 길이. 이보다 큰 입력은 검사 없이 거부한다.
const maxInputLength = 64 * 1024

// Pipeline 는 검사 파이프라인 실행기다.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}

// VerdictCache 는 동일 입력의 재검사를 건너뛰는 판정 캐시다.
type VerdictCache interface {
	Get(ctx context.Context, input string) (pipeline.Result, error)
	Set(ctx context.Context, input string, result pipeline.Result) error
}

// AnalyzeRequest 는 검사 요청이다.
type AnalyzeRequest struct {
	Input string `json:"input" binding:"required"`
}

// AnalyzeResponse 는 검사 응답이다.
type AnalyzeResponse struct {
	pipeline.Result
	Cached bool `json:"cached"`
}

// AnalyzeHandler 는 검사 API 핸들러다.
type AnalyzeHandler struct {
	pipeline Pipeline
	verdicts VerdictCache
	metrics  *metrics.Store
	logger   *slog.Logger
}

// NewAnalyzeHandler 는 검사 핸들러를 생성한다.
func NewAnalyzeHandler(p Pipeline, verdicts VerdictCache, m *metrics.Store, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{pipeline: p, verdicts: verdicts, metrics: m, logger: logger}
}

// RegisterRoutes 는 검사 라우트를 등록한다.
func (h *AnalyzeHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/analyze", h.handleAnalyze)
}

func (h *AnalyzeHandler) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(c, httperror.NewInvalidInput("input must not be blank"))
		return
	}
	if len(req.Input) > maxInputLength {
		writeError(c, httperror.NewInvalidInput("input too long"))
		return
	}

	ctx := c.Request.Context()
	requestID := middleware.GetRequestID(c)

	if h.verdicts != nil {
		cached, err := h.verdicts.Get(ctx, req.Input)
		if err == nil {
			if h.metrics != nil {
				h.metrics.RecordCacheHit()
			}
			cached.RequestID = requestID
			c.JSON(http.StatusOK, AnalyzeResponse{Result: cached, Cached: true})
			return
		}
		if !errors.Is(err, store.ErrNotFound) && h.logger != nil {
			h.logger.Warn("verdict_cache_get_failed", "request_id", requestID, "err", err)
		}
	}

	result := h.pipeline.Run(ctx, pipeline.Request{ID: requestID, Input: req.Input, ReceivedAt: time.Now()})

	if h.verdicts != nil {
		if err := h.verdicts.Set(ctx, req.Input, result); err != nil && h.logger != nil {
			h.logger.Warn("verdict_cache_set_failed", "request_id", requestID, "err", err)
		}
	}

	c.JSON(http.StatusOK, AnalyzeResponse{Result: result})
}
