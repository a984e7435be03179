package guardian

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/prompt"
)

// Honeypot 은 의도적으로 약한 페르소나로 입력을 실행하는 미끼 모델이다.
// 높은 temperature 로 돌려 위반 출력을 유도하고, 그 출력은 출력 가디언이 검사한다.
// 미끼 출력은 절대 호출자에게 전달되지 않는다.
type Honeypot struct {
	cfg      config.GuardianConfig
	registry *model.Registry
	prompts  *prompt.Bundle
	metrics  *metrics.Store
	logger   *slog.Logger
}

// NewHoneypot 은 미끼 실행기를 생성한다.
func NewHoneypot(cfg config.GuardianConfig, registry *model.Registry, prompts *prompt.Bundle, metricsStore *metrics.Store, logger *slog.Logger) *Honeypot {
	return &Honeypot{cfg: cfg, registry: registry, prompts: prompts, metrics: metricsStore, logger: logger}
}

// Execute 는 사용자 입력을 미끼 모델로 실행해 생성 텍스트를 반환한다.
func (h *Honeypot) Execute(ctx context.Context, input string) (string, error) {
	_, user, err := h.prompts.Render("honeypot", map[string]string{
		"input": input,
	})
	if err != nil {
		return "", fmt.Errorf("honeypot prompt: %w", err)
	}

	output, usage, err := generate(ctx, h.registry, h.cfg.Binding, user)
	if err != nil {
		return "", err
	}
	if h.metrics != nil {
		h.metrics.RecordTokens(usage.TotalTokens)
	}

	if h.logger != nil {
		h.logger.Debug("honeypot_executed", "output_len", len(output), "tokens", usage.TotalTokens)
	}
	return output, nil
}
