package guardian

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/policy"
	"github.com/park285/svalinn-gateway-go/internal/prompt"
)

// OutputGuardian 은 미끼 모델의 출력을 검사하는 2차 방어선이다.
// 입력만으로 드러나지 않는 위반이 출력에서 실현되었는지 본다.
type OutputGuardian struct {
	cfg      config.GuardianConfig
	registry *model.Registry
	policies *policy.Set
	prompts  *prompt.Bundle
	metrics  *metrics.Store
	logger   *slog.Logger
}

// NewOutputGuardian 은 출력 가디언을 생성한다.
func NewOutputGuardian(
	cfg config.GuardianConfig,
	registry *model.Registry,
	policies *policy.Set,
	prompts *prompt.Bundle,
	metricsStore *metrics.Store,
	logger *slog.Logger,
) *OutputGuardian {
	return &OutputGuardian{
		cfg:      cfg,
		registry: registry,
		policies: policies,
		prompts:  prompts,
		metrics:  metricsStore,
		logger:   logger,
	}
}

// Evaluate 는 원 요청과 생성된 응답 쌍을 판정한다.
// VIOLATION 은 UNSAFE 로, COMPLIANT 는 SAFE 로 정규화된다.
func (g *OutputGuardian) Evaluate(ctx context.Context, request string, response string) (Verdict, error) {
	// 결정적 정책 매칭: 출력에 정책 위반 구문이 그대로 나타나면 즉시 차단
	if strongest, ok := strongestHit(g.policies.Match(response)); ok && strongest.Weight >= 1.0 {
		if g.logger != nil {
			g.logger.Info("output_blocked_by_policy", "policy_id", strongest.RuleID, "matched", strongest.Matched)
		}
		return Verdict{
			Kind:      KindUnsafe,
			Reasoning: fmt.Sprintf("policy match in response: %s", strongest.Matched),
			PolicyID:  strongest.RuleID,
		}, nil
	}

	_, user, err := g.prompts.Render("output_guardian", map[string]string{
		"policies": g.policies.Describe(),
		"request":  prompt.EscapeXML(request),
		"response": prompt.EscapeXML(response),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("output guardian prompt: %w", err)
	}

	output, usage, err := generate(ctx, g.registry, g.cfg.Binding, user)
	if err != nil {
		return Verdict{Kind: KindError, Reasoning: err.Error()}, err
	}
	if g.metrics != nil {
		g.metrics.RecordTokens(usage.TotalTokens)
	}

	verdict, err := parseVerdict(output)
	if err != nil {
		return verdict, err
	}
	if verdict.Kind == KindUnsafe && verdict.PolicyID == "" {
		if strongest, ok := strongestHit(g.policies.Match(response)); ok {
			verdict.PolicyID = strongest.RuleID
		}
	}
	return verdict, nil
}
