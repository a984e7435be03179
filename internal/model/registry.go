package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/llm"
)

// Engine 은 단일 추론 백엔드다.
// Generate 는 blocking 호출이며 ctx 취소/타임아웃을 존중해야 한다.
type Engine interface {
	Name() string
	Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, llm.Usage, error)
	Close() error
}

// Factory 는 바인딩 설정으로 엔진을 생성한다. provider 이름으로 등록된다.
type Factory func(ctx context.Context, binding config.ModelBinding) (Engine, error)

type entry struct {
	binding config.ModelBinding
	engine  Engine
	sem     *semaphore.Weighted
}

// Registry 는 모델 키 → 엔진 매핑과 메모리 예산을 관리한다.
// 각 엔진은 가중치 1 세마포어로 보호되어 한 시점에 한 호출자만 사용한다.
type Registry struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	budgetMB  int
	usedMB    int
	factories map[string]Factory
	entries   map[string]*entry
}

// NewRegistry 는 메모리 예산(MB)을 갖는 레지스트리를 생성한다.
func NewRegistry(budgetMB int, logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		budgetMB:  budgetMB,
		factories: make(map[string]Factory),
		entries:   make(map[string]*entry),
	}
}

// RegisterFactory 는 provider 이름에 엔진 팩토리를 연결한다.
func (r *Registry) RegisterFactory(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

// Register 는 바인딩 하나를 검증하고 엔진을 생성해 등록한다.
// 같은 키는 재등록하지 않고 기존 엔진을 공유한다. (가디언 간 모델 공유)
// 예산을 초과하면 ResourceError 를 반환한다.
func (r *Registry) Register(ctx context.Context, binding config.ModelBinding) error {
	factory, err := r.reserve(binding)
	if err != nil || factory == nil {
		return err
	}

	engine, err := factory(ctx, binding)
	if err != nil {
		r.unreserve(binding)
		return &ResourceError{Model: binding.Key, Reason: fmt.Sprintf("engine init failed: %v", err)}
	}

	r.mu.Lock()
	r.entries[binding.Key] = &entry{
		binding: binding,
		engine:  engine,
		sem:     semaphore.NewWeighted(1),
	}
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("model_registered",
			"key", binding.Key,
			"provider", binding.Provider,
			"model", binding.Model,
			"memory_mb", binding.ApproxMemoryMB,
		)
	}
	return nil
}

// reserve 는 예산과 팩토리를 검증하고 메모리를 선점한다.
// 이미 등록된 키면 (nil, nil) 을 반환해 호출자가 건너뛰게 한다.
func (r *Registry) reserve(binding config.ModelBinding) (Factory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[binding.Key]; exists {
		return nil, nil
	}

	factory, ok := r.factories[binding.Provider]
	if !ok {
		return nil, &ResourceError{Model: binding.Key, Reason: fmt.Sprintf("unknown provider: %s", binding.Provider)}
	}

	if r.budgetMB > 0 && r.usedMB+binding.ApproxMemoryMB > r.budgetMB {
		return nil, &ResourceError{
			Model:  binding.Key,
			Reason: fmt.Sprintf("memory budget exceeded: used=%dMB request=%dMB budget=%dMB", r.usedMB, binding.ApproxMemoryMB, r.budgetMB),
		}
	}
	r.usedMB += binding.ApproxMemoryMB
	return factory, nil
}

func (r *Registry) unreserve(binding config.ModelBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usedMB -= binding.ApproxMemoryMB
}

// RegisterAll 은 바인딩 목록을 병렬로 등록한다. 하나라도 실패하면 오류를 반환한다.
func (r *Registry) RegisterAll(ctx context.Context, bindings []config.ModelBinding) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, binding := range bindings {
		g.Go(func() error {
			return r.Register(gctx, binding)
		})
	}
	return g.Wait()
}

// Acquire 는 키에 해당하는 엔진의 배타적 사용권을 얻는다.
// 다른 호출자가 사용 중이면 ctx 가 끝날 때까지 대기한다.
func (r *Registry) Acquire(ctx context.Context, key string) (*Handle, error) {
	r.mu.RLock()
	ent, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, &ResourceError{Model: key, Reason: "not registered"}
	}

	if err := ent.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire model %s: %w", key, err)
	}
	return &Handle{key: key, engine: ent.engine, sem: ent.sem}, nil
}

// Keys 는 등록된 모델 키 목록을 반환한다.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

// UsedMemoryMB 는 선점된 메모리 총량을 반환한다.
func (r *Registry) UsedMemoryMB() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usedMB
}

// Close 는 모든 엔진을 닫는다.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	closed := make(map[Engine]bool)
	for key, ent := range r.entries {
		if closed[ent.engine] {
			continue
		}
		closed[ent.engine] = true
		if err := ent.engine.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close engine %s: %w", key, err)
		}
	}
	r.entries = make(map[string]*entry)
	r.usedMB = 0
	return firstErr
}

// Handle 은 Acquire 로 얻은 배타적 사용권이다.
// Release 는 멱등이며, defer 로 호출해도 안전하다.
type Handle struct {
	key    string
	engine Engine
	sem    *semaphore.Weighted
	once   sync.Once
}

// Name 은 모델 키를 반환한다.
func (h *Handle) Name() string {
	return h.key
}

// Infer 는 보유한 엔진으로 생성을 수행한다.
// 엔진 오류는 InferenceError 로 감싼다. (ctx 오류는 Unwrap 체인으로 판별 가능)
func (h *Handle) Infer(ctx context.Context, prompt string, params llm.GenerationParams) (string, llm.Usage, error) {
	output, usage, err := h.engine.Generate(ctx, prompt, params)
	if err != nil {
		return "", usage, &InferenceError{Model: h.key, Err: err}
	}
	return output, usage, nil
}

// Release 는 사용권을 반납한다.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.sem.Release(1)
	})
}
