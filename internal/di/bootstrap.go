package di

import (
	"context"
	"fmt"

	"github.com/park285/svalinn-gateway-go/internal/audit"
	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/gemini"
	"github.com/park285/svalinn-gateway-go/internal/guardian"
	"github.com/park285/svalinn-gateway-go/internal/handler"
	"github.com/park285/svalinn-gateway-go/internal/health"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/normalizer"
	"github.com/park285/svalinn-gateway-go/internal/pipeline"
	"github.com/park285/svalinn-gateway-go/internal/policy"
	"github.com/park285/svalinn-gateway-go/internal/server"
	"github.com/park285/svalinn-gateway-go/internal/store"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
// 모델 적재 실패, 정책 로딩 실패는 기동 실패다. (fail-fast)
func InitializeApp(ctx context.Context) (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	config.LogEnvStatus(cfg, logger)

	metricsStore := metrics.NewStore()

	policies, err := policy.Load(cfg.Policy.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	prompts, err := guardian.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("guardian prompts: %w", err)
	}

	registry := model.NewRegistry(cfg.Models.MemoryBudgetMB, logger)
	registry.RegisterFactory(config.ProviderStatic, model.StaticFactory)
	registry.RegisterFactory(config.ProviderGemini, gemini.Factory(cfg.Gemini))
	if err := registry.RegisterAll(ctx, guardianBindings(cfg)); err != nil {
		registry.Close()
		return nil, fmt.Errorf("model registry: %w", err)
	}

	norm := normalizer.New(cfg.Normalizer, logger)
	inputGuardian := guardian.NewInputGuardian(cfg.InputGuardian, registry, policies, prompts, metricsStore, logger)
	honeypot := guardian.NewHoneypot(cfg.Honeypot, registry, prompts, metricsStore, logger)
	outputGuardian := guardian.NewOutputGuardian(cfg.OutputGuardian, registry, policies, prompts, metricsStore, logger)

	verdictStore, err := store.New(cfg.VerdictStore)
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("verdict store: %w", err)
	}

	var auditRepository *audit.Repository
	var auditRecorder *audit.Recorder
	var sinks []pipeline.Sink
	if cfg.Database.Enabled {
		auditRepository = audit.NewRepository(cfg.Database, logger)
		auditRecorder = audit.NewRecorder(cfg.Database, auditRepository, logger)
		sinks = append(sinks, auditRecorder)
	}

	runner := pipeline.NewRunner(pipeline.Options{
		Normalizer:  norm,
		Input:       inputGuardian,
		Honeypot:    honeypot,
		Output:      outputGuardian,
		InputCfg:    cfg.InputGuardian,
		HoneypotCfg: cfg.Honeypot,
		OutputCfg:   cfg.OutputGuardian,
		PipelineCfg: cfg.Pipeline,
		Metrics:     metricsStore,
		Sinks:       sinks,
		Logger:      logger,
	})

	healthDeps := health.Deps{
		Config:   cfg,
		Registry: registry,
		Policies: policies,
		Verdicts: verdictStore,
	}
	if auditRepository != nil {
		healthDeps.Audit = auditRepository
	}

	var decisions handler.DecisionReader
	if auditRepository != nil {
		decisions = auditRepository
	}

	router := handler.NewRouter(
		cfg,
		logger,
		healthDeps,
		handler.NewAnalyzeHandler(runner, verdictStore, metricsStore, logger),
		handler.NewNormalizeHandler(norm),
		handler.NewPolicyHandler(policies),
		handler.NewMetricsHandler(metricsStore, decisions),
	)
	httpServer := server.NewHTTPServer(cfg, router)

	return NewApp(httpServer, logger, cfg, registry, verdictStore, auditRepository, auditRecorder), nil
}
