package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/policy"
)

// PolicyListResponse 는 정책 목록 응답이다.
type PolicyListResponse struct {
	Count int           `json:"count"`
	Rules []policy.Rule `json:"rules"`
}

// PolicyHandler 는 정책 조회 API 핸들러다.
type PolicyHandler struct {
	policies *policy.Set
}

// NewPolicyHandler 는 정책 핸들러를 생성한다.
func NewPolicyHandler(policies *policy.Set) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// RegisterRoutes 는 정책 라우트를 등록한다.
func (h *PolicyHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/policies")
	group.GET("", h.handleList)
	group.GET("/:id", h.handleGet)
}

func (h *PolicyHandler) handleList(c *gin.Context) {
	rules := h.policies.Rules()
	c.JSON(http.StatusOK, PolicyListResponse{Count: len(rules), Rules: rules})
}

func (h *PolicyHandler) handleGet(c *gin.Context) {
	rule, ok := h.policies.ByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found", "id": c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, rule)
}
