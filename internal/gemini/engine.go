package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/llm"
	"github.com/park285/svalinn-gateway-go/internal/model"
)

// ErrMissingAPIKey 는 Gemini API 키가 없을 때 반환된다.
var ErrMissingAPIKey = errors.New("missing gemini api key")

// Engine 은 Gemini 백엔드 추론 엔진이다.
// API 키를 라운드로빈으로 순환하며, 키별 클라이언트를 재사용한다.
type Engine struct {
	cfg     config.GeminiConfig
	binding config.ModelBinding

	mu        sync.Mutex
	clients   map[string]*genai.Client
	apiKeyIdx int
}

// NewEngine 은 Gemini 엔진을 생성한다. 클라이언트 연결은 첫 호출 때 수립한다.
func NewEngine(binding config.ModelBinding, cfg config.GeminiConfig) (*Engine, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, ErrMissingAPIKey
	}
	if binding.Model == "" {
		return nil, fmt.Errorf("gemini binding %s: model name required", binding.Key)
	}
	return &Engine{
		cfg:     cfg,
		binding: binding,
		clients: make(map[string]*genai.Client),
	}, nil
}

// Factory 는 레지스트리에 등록하는 gemini provider 팩토리다.
func Factory(cfg config.GeminiConfig) model.Factory {
	return func(_ context.Context, binding config.ModelBinding) (model.Engine, error) {
		return NewEngine(binding, cfg)
	}
}

// Name 은 바인딩 키를 반환한다.
func (e *Engine) Name() string {
	return e.binding.Key
}

// Generate 는 단일 프롬프트 생성을 수행한다.
func (e *Engine) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, llm.Usage, error) {
	client, err := e.selectClient(ctx)
	if err != nil {
		return "", llm.Usage{}, err
	}

	response, err := client.Models.GenerateContent(ctx, e.binding.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		e.buildGenerateConfig(params),
	)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", extractUsage(response), errors.New("empty model response")
	}
	return text, extractUsage(response), nil
}

// Close 는 보유한 클라이언트를 정리한다.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients = make(map[string]*genai.Client)
	return nil
}

func (e *Engine) selectClient(ctx context.Context) (*genai.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.cfg.APIKeys) == 0 {
		return nil, ErrMissingAPIKey
	}

	key := e.cfg.APIKeys[e.apiKeyIdx%len(e.cfg.APIKeys)]
	e.apiKeyIdx++
	if client, ok := e.clients[key]; ok {
		return client, nil
	}

	timeout := time.Duration(e.cfg.TimeoutSeconds) * time.Second
	client, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			Timeout: genai.Ptr(timeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	e.clients[key] = client
	return client, nil
}

func (e *Engine) buildGenerateConfig(params llm.GenerationParams) *genai.GenerateContentConfig {
	temperature := float32(params.Temperature)
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.cfg.MaxOutputTokens
	}

	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}
}

func extractUsage(response *genai.GenerateContentResponse) llm.Usage {
	if response == nil || response.UsageMetadata == nil {
		return llm.Usage{}
	}
	usage := response.UsageMetadata
	return llm.Usage{
		InputTokens:  int(usage.PromptTokenCount),
		OutputTokens: int(usage.CandidatesTokenCount),
		TotalTokens:  int(usage.TotalTokenCount),
	}
}
