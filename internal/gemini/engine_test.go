package gemini

import (
	"errors"
	"testing"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/llm"
)

func TestNewEngineRequiresAPIKey(t *testing.T) {
	binding := config.ModelBinding{Key: "input-guardian", Model: "gemini-2.5-flash"}
	_, err := NewEngine(binding, config.GeminiConfig{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewEngineRequiresModel(t *testing.T) {
	binding := config.ModelBinding{Key: "input-guardian"}
	cfg := config.GeminiConfig{APIKeys: []string{"test-key"}}
	if _, err := NewEngine(binding, cfg); err == nil {
		t.Fatalf("expected error for missing model name")
	}
}

func TestBuildGenerateConfig(t *testing.T) {
	binding := config.ModelBinding{Key: "input-guardian", Model: "gemini-2.5-flash"}
	cfg := config.GeminiConfig{APIKeys: []string{"test-key"}, MaxOutputTokens: 512}
	engine, err := NewEngine(binding, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	generated := engine.buildGenerateConfig(llm.GenerationParams{Temperature: 0.1, MaxTokens: 128})
	if generated.MaxOutputTokens != 128 {
		t.Fatalf("expected explicit max tokens, got %d", generated.MaxOutputTokens)
	}
	if generated.Temperature == nil || *generated.Temperature != float32(0.1) {
		t.Fatalf("expected temperature 0.1, got %v", generated.Temperature)
	}

	fallback := engine.buildGenerateConfig(llm.GenerationParams{})
	if fallback.MaxOutputTokens != 512 {
		t.Fatalf("expected config fallback, got %d", fallback.MaxOutputTokens)
	}
}

func TestFactoryProducesEngine(t *testing.T) {
	factory := Factory(config.GeminiConfig{APIKeys: []string{"test-key"}})
	engine, err := factory(t.Context(), config.ModelBinding{Key: "honeypot", Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.Name() != "honeypot" {
		t.Fatalf("expected binding key as name, got %s", engine.Name())
	}
}
