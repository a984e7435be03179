package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/llm"
)

type fakeEngine struct {
	name     string
	reply    string
	err      error
	closed   atomic.Bool
	latency  time.Duration
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (e *fakeEngine) Name() string { return e.name }

func (e *fakeEngine) Generate(ctx context.Context, _ string, _ llm.GenerationParams) (string, llm.Usage, error) {
	if e.inflight.Add(1) > 1 {
		e.overlap.Store(true)
	}
	defer e.inflight.Add(-1)

	if e.latency > 0 {
		select {
		case <-time.After(e.latency):
		case <-ctx.Done():
			return "", llm.Usage{}, ctx.Err()
		}
	}
	if e.err != nil {
		return "", llm.Usage{}, e.err
	}
	return e.reply, llm.Usage{TotalTokens: 1}, nil
}

func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

func fakeFactory(engine *fakeEngine) Factory {
	return func(_ context.Context, binding config.ModelBinding) (Engine, error) {
		engine.name = binding.Key
		return engine, nil
	}
}

func testBinding(key string, memoryMB int) config.ModelBinding {
	return config.ModelBinding{Key: key, Provider: "fake", Model: "fake-model", ApproxMemoryMB: memoryMB}
}

func TestRegisterUnknownProvider(t *testing.T) {
	registry := NewRegistry(1000, nil)
	err := registry.Register(context.Background(), testBinding("g1", 100))

	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
}

func TestRegisterMemoryBudget(t *testing.T) {
	registry := NewRegistry(500, nil)
	registry.RegisterFactory("fake", fakeFactory(&fakeEngine{}))

	if err := registry.Register(context.Background(), testBinding("g1", 400)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := registry.Register(context.Background(), testBinding("g2", 400))
	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected budget ResourceError, got %v", err)
	}
	if registry.UsedMemoryMB() != 400 {
		t.Fatalf("failed registration must not reserve memory, used=%d", registry.UsedMemoryMB())
	}
}

func TestRegisterSharedKey(t *testing.T) {
	registry := NewRegistry(500, nil)
	registry.RegisterFactory("fake", fakeFactory(&fakeEngine{}))

	binding := testBinding("guardian-core", 400)
	if err := registry.Register(context.Background(), binding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 같은 키 재등록은 기존 엔진을 공유하고 예산을 다시 차감하지 않는다
	if err := registry.Register(context.Background(), binding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.UsedMemoryMB() != 400 {
		t.Fatalf("expected shared registration, used=%d", registry.UsedMemoryMB())
	}
	if len(registry.Keys()) != 1 {
		t.Fatalf("expected single entry, got %v", registry.Keys())
	}
}

func TestRegisterFactoryFailureReleasesBudget(t *testing.T) {
	registry := NewRegistry(500, nil)
	registry.RegisterFactory("fake", func(_ context.Context, _ config.ModelBinding) (Engine, error) {
		return nil, fmt.Errorf("weights not found")
	})

	err := registry.Register(context.Background(), testBinding("g1", 400))
	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
	if registry.UsedMemoryMB() != 0 {
		t.Fatalf("expected budget released, used=%d", registry.UsedMemoryMB())
	}
}

func TestAcquireMutualExclusion(t *testing.T) {
	engine := &fakeEngine{reply: "ok", latency: time.Millisecond}
	registry := NewRegistry(0, nil)
	registry.RegisterFactory("fake", fakeFactory(engine))
	if err := registry.Register(context.Background(), testBinding("g1", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := registry.Acquire(context.Background(), "g1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer handle.Release()
			if _, _, err := handle.Infer(context.Background(), "hi", llm.GenerationParams{}); err != nil {
				t.Errorf("infer: %v", err)
			}
		}()
	}
	wg.Wait()

	if engine.overlap.Load() {
		t.Fatalf("expected exclusive access, saw overlapping calls")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	registry := NewRegistry(0, nil)
	registry.RegisterFactory("fake", fakeFactory(&fakeEngine{reply: "ok"}))
	if err := registry.Register(context.Background(), testBinding("g1", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	holder, err := registry.Acquire(context.Background(), "g1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := registry.Acquire(ctx, "g1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAcquireUnregistered(t *testing.T) {
	registry := NewRegistry(0, nil)
	_, err := registry.Acquire(context.Background(), "ghost")
	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
}

func TestInferWrapsEngineError(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("cuda out of memory")}
	registry := NewRegistry(0, nil)
	registry.RegisterFactory("fake", fakeFactory(engine))
	if err := registry.Register(context.Background(), testBinding("g1", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handle, err := registry.Acquire(context.Background(), "g1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer handle.Release()

	_, _, err = handle.Infer(context.Background(), "hi", llm.GenerationParams{})
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	registry := NewRegistry(0, nil)
	registry.RegisterFactory("fake", fakeFactory(&fakeEngine{reply: "ok"}))
	if err := registry.Register(context.Background(), testBinding("g1", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handle, err := registry.Acquire(context.Background(), "g1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handle.Release()
	handle.Release() // 중복 호출은 무시된다

	again, err := registry.Acquire(context.Background(), "g1")
	if err != nil {
		t.Fatalf("expected re-acquire after release, got %v", err)
	}
	again.Release()
}

func TestRegistryClose(t *testing.T) {
	engine := &fakeEngine{reply: "ok"}
	registry := NewRegistry(0, nil)
	registry.RegisterFactory("fake", fakeFactory(engine))
	if err := registry.Register(context.Background(), testBinding("g1", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := registry.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !engine.closed.Load() {
		t.Fatalf("expected engine closed")
	}
	if _, err := registry.Acquire(context.Background(), "g1"); err == nil {
		t.Fatalf("expected acquire to fail after close")
	}
}

func TestStaticEngineVerdicts(t *testing.T) {
	guardian := NewStaticEngine(config.ModelBinding{Key: "input-guardian"})
	out, _, err := guardian.Generate(context.Background(), "user attempts jailbreak", llm.GenerationParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"verdict": "UNSAFE", "reasoning": "suspicious request detected", "policy_id": ""}` {
		t.Fatalf("expected unsafe verdict, got %q", out)
	}

	out, _, err = guardian.Generate(context.Background(), "what is the weather", llm.GenerationParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"verdict": "SAFE", "reasoning": "no policy violation found", "policy_id": ""}` {
		t.Fatalf("expected safe verdict, got %q", out)
	}

	decoy := NewStaticEngine(config.ModelBinding{Key: "honeypot"})
	out, usage, err := decoy.Generate(context.Background(), "hello there", llm.GenerationParams{})
	if err != nil || out == "" {
		t.Fatalf("expected reply, got %q err=%v", out, err)
	}
	if usage.TotalTokens == 0 {
		t.Fatalf("expected usage accounting")
	}
}
