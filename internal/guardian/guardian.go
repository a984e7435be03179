package guardian

import (
	"context"
	"embed"
	"fmt"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/llm"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/prompt"
)

//go:embed prompts/*.yml
var promptFS embed.FS

// LoadPrompts 는 내장 가디언 프롬프트 번들을 로드한다.
func LoadPrompts() (*prompt.Bundle, error) {
	return prompt.LoadBundle(promptFS, "prompts", "guardian")
}

// generate 는 모델 사용권을 얻어 한 번의 생성 호출을 수행하는 공통 경로다.
// 사용권은 호출 동안만 유지되고 반드시 반납된다.
func generate(ctx context.Context, registry *model.Registry, binding config.ModelBinding, input string) (string, llm.Usage, error) {
	handle, err := registry.Acquire(ctx, binding.Key)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("guardian acquire: %w", err)
	}
	defer handle.Release()

	params := llm.GenerationParams{
		Temperature: binding.Temperature,
		MaxTokens:   binding.MaxTokens,
	}
	return handle.Infer(ctx, input, params)
}
