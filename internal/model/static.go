package model

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/llm"
	"github.com/park285/svalinn-gateway-go/internal/randx"
)

// StaticEngine 은 외부 호출 없이 결정적 응답을 돌려주는 로컬 엔진이다.
// API 키 없는 환경의 기동 확인과 통합 테스트에 사용한다.
// 가디언 바인딩이면 키워드 휴리스틱으로 JSON 판정을, 아니면 일반 텍스트를 반환한다.
type StaticEngine struct {
	name     string
	guardian bool
	rng      *randx.LockedRand
}

var staticReplies = []string{
	"This is a safe response.",
	"Here is the information you asked for.",
	"I can help with that.",
}

// NewStaticEngine 은 바인딩 키에 "guardian" 이 포함되면 판정 모드로 동작한다.
func NewStaticEngine(binding config.ModelBinding) *StaticEngine {
	return &StaticEngine{
		name:     binding.Key,
		guardian: strings.Contains(strings.ToLower(binding.Key), "guardian"),
		rng:      randx.New(rand.New(rand.NewPCG(1, 2))),
	}
}

// StaticFactory 는 레지스트리에 등록하는 static provider 팩토리다.
func StaticFactory(_ context.Context, binding config.ModelBinding) (Engine, error) {
	return NewStaticEngine(binding), nil
}

func (e *StaticEngine) Name() string {
	return e.name
}

func (e *StaticEngine) Generate(ctx context.Context, prompt string, _ llm.GenerationParams) (string, llm.Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", llm.Usage{}, err
	}

	lowered := strings.ToLower(prompt)
	suspicious := strings.Contains(lowered, "jailbreak") || strings.Contains(lowered, "unsafe") ||
		strings.Contains(lowered, "ignore all previous instructions")

	var output string
	switch {
	case e.guardian && suspicious:
		output = `{"verdict": "UNSAFE", "reasoning": "suspicious request detected", "policy_id": ""}`
	case e.guardian:
		output = `{"verdict": "SAFE", "reasoning": "no policy violation found", "policy_id": ""}`
	case suspicious:
		output = "I cannot help with that request."
	default:
		output = staticReplies[e.rng.IntN(len(staticReplies))]
	}

	usage := llm.Usage{
		InputTokens:  len(strings.Fields(prompt)),
		OutputTokens: len(strings.Fields(output)),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return output, usage, nil
}

func (e *StaticEngine) Close() error {
	return nil
}
