package guardian

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/normalizer"
	"github.com/park285/svalinn-gateway-go/internal/policy"
	"github.com/park285/svalinn-gateway-go/internal/prompt"
)

// InputGuardian 은 사용자 입력을 검사하는 1차 방어선이다.
// 결정적 정책 매칭을 먼저 수행하고, 모델 판정은 원문/정규화 두 채널을
// 한 프롬프트에 담아 한 번의 호출로 끝낸다. 어느 채널이든 위반이면 차단한다.
type InputGuardian struct {
	cfg      config.GuardianConfig
	registry *model.Registry
	policies *policy.Set
	prompts  *prompt.Bundle
	metrics  *metrics.Store
	logger   *slog.Logger
}

// NewInputGuardian 은 입력 가디언을 생성한다.
func NewInputGuardian(
	cfg config.GuardianConfig,
	registry *model.Registry,
	policies *policy.Set,
	prompts *prompt.Bundle,
	metricsStore *metrics.Store,
	logger *slog.Logger,
) *InputGuardian {
	return &InputGuardian{
		cfg:      cfg,
		registry: registry,
		policies: policies,
		prompts:  prompts,
		metrics:  metricsStore,
		logger:   logger,
	}
}

// Evaluate 는 원문과 정규화 텍스트를 함께 판정한다.
// 반환된 error 는 판정 실패(모델/파싱)를 뜻하며, 호출자는 fail-closed 로 처리한다.
func (g *InputGuardian) Evaluate(ctx context.Context, view normalizer.View) (Verdict, error) {
	// 1. 결정적 정책 매칭: 가중치 1.0 이상이면 모델 없이 즉시 차단
	hits := append(g.policies.Match(view.Raw), g.policies.Match(view.Text)...)
	if strongest, ok := strongestHit(hits); ok && strongest.Weight >= 1.0 {
		if g.logger != nil {
			g.logger.Info("input_blocked_by_policy", "policy_id", strongest.RuleID, "matched", strongest.Matched)
		}
		return Verdict{
			Kind:      KindUnsafe,
			Reasoning: fmt.Sprintf("policy match: %s", strongest.Matched),
			PolicyID:  strongest.RuleID,
		}, nil
	}

	// 2. 모델 판정: 두 채널을 하나의 프롬프트로 묶어 단일 패스로 검사한다
	_, user, err := g.prompts.Render("input_guardian", map[string]string{
		"policies":   g.policies.Describe(),
		"score":      strconv.FormatFloat(view.Score, 'f', 2, 64),
		"raw":        prompt.EscapeXML(view.Raw),
		"normalized": prompt.EscapeXML(view.Text),
	})
	if err != nil {
		err = fmt.Errorf("input guardian prompt: %w", err)
		return Verdict{Kind: KindError, Reasoning: err.Error()}, err
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
	if verdict.Kind == KindUnsafe {
		if verdict.PolicyID == "" {
			if strongest, ok := strongestHit(hits); ok {
				verdict.PolicyID = strongest.RuleID
			}
		}
		if g.logger != nil {
			g.logger.Info("input_blocked_by_model", "policy_id", verdict.PolicyID)
		}
	}
	return verdict, nil
}

func strongestHit(hits []policy.Hit) (policy.Hit, bool) {
	if len(hits) == 0 {
		return policy.Hit{}, false
	}
	strongest := hits[0]
	for _, hit := range hits[1:] {
		if hit.Weight > strongest.Weight {
			strongest = hit
		}
	}
	return strongest, true
}
