package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/httperror"
	"github.com/park285/svalinn-gateway-go/internal/middleware"
)

// writeError: 에러 응답을 작성합니다.
func writeError(c *gin.Context, err error) {
	if c == nil {
		return
	}
	status, payload := httperror.Response(err, middleware.GetRequestID(c))
	c.JSON(status, payload)
}

// bindJSON: 요청 본문을 JSON으로 파싱합니다.
func bindJSON(c *gin.Context, out any) bool {
	if c == nil {
		return false
	}
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, httperror.NewValidationError(err))
		return false
	}
	return true
}
