package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/svalinn-gateway-go/internal/config"
)

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{HTTPRateLimit: config.HTTPRateLimitConfig{
		RequestsPerMinute: 1,
		CacheSize:         10,
		CacheTTLSeconds:   int(time.Minute.Seconds()),
	}}

	router := gin.New()
	router.Use(RateLimit(cfg))
	router.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	first.RemoteAddr = "1.2.3.4:1234"
	firstResp := httptest.NewRecorder()
	router.ServeHTTP(firstResp, first)
	if firstResp.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", firstResp.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	second.RemoteAddr = "1.2.3.4:1234"
	secondResp := httptest.NewRecorder()
	router.ServeHTTP(secondResp, second)
	if secondResp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", secondResp.Code)
	}
}

func TestRateLimitDisabledWithoutLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit(&config.Config{}))
	router.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 5 {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
		req.RemoteAddr = "1.2.3.4:1234"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected ok without limit, got %d", resp.Code)
		}
	}
}

func TestRateLimitSeparatesIdentities(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{HTTPRateLimit: config.HTTPRateLimitConfig{
		RequestsPerMinute: 1,
		CacheSize:         10,
		CacheTTLSeconds:   int(time.Minute.Seconds()),
	}}

	router := gin.New()
	router.Use(RateLimit(cfg))
	router.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	first.Header.Set("X-API-Key", "key-a")
	firstResp := httptest.NewRecorder()
	router.ServeHTTP(firstResp, first)

	second := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	second.Header.Set("X-API-Key", "key-b")
	secondResp := httptest.NewRecorder()
	router.ServeHTTP(secondResp, second)

	if firstResp.Code != http.StatusOK || secondResp.Code != http.StatusOK {
		t.Fatalf("different keys must not share a limit: %d %d", firstResp.Code, secondResp.Code)
	}
}
