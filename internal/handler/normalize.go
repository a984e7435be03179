package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/httperror"
	"github.com/park285/svalinn-gateway-go/internal/normalizer"
)

// NormalizeRequest 는 역난독화 요청이다.
type NormalizeRequest struct {
	Input string `json:"input" binding:"required"`
}

// NormalizeResponse 는 역난독화 응답이다.
type NormalizeResponse struct {
	normalizer.View
	Obfuscated bool `json:"obfuscated"`
}

// NormalizeHandler 는 역난독화 API 핸들러다.
// 파이프라인을 거치지 않고 정규화 결과만 확인할 때 쓴다.
type NormalizeHandler struct {
	normalizer *normalizer.Normalizer
}

// NewNormalizeHandler 는 역난독화 핸들러를 생성한다.
func NewNormalizeHandler(n *normalizer.Normalizer) *NormalizeHandler {
	return &NormalizeHandler{normalizer: n}
}

// RegisterRoutes 는 역난독화 라우트를 등록한다.
func (h *NormalizeHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/normalize", h.handleNormalize)
}

func (h *NormalizeHandler) handleNormalize(c *gin.Context) {
	var req NormalizeRequest
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

	view := h.normalizer.Normalize(req.Input)
	c.JSON(http.StatusOK, NormalizeResponse{View: view, Obfuscated: view.Obfuscated()})
}
