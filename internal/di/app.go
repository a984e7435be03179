package di

import (
	"log/slog"
	"net/http"

	"github.com/park285/svalinn-gateway-go/internal/audit"
	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/store"
)

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server          *http.Server
	Logger          *slog.Logger
	Config          *config.Config
	Registry        *model.Registry
	VerdictStore    *store.Store
	AuditRepository *audit.Repository
	AuditRecorder   *audit.Recorder
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	logger *slog.Logger,
	cfg *config.Config,
	registry *model.Registry,
	verdictStore *store.Store,
	auditRepository *audit.Repository,
	auditRecorder *audit.Recorder,
) *App {
	return &App{
		Server:          server,
		Logger:          logger,
		Config:          cfg,
		Registry:        registry,
		VerdictStore:    verdictStore,
		AuditRepository: auditRepository,
		AuditRecorder:   auditRecorder,
	}
}

// Close: 앱 리소스를 정리합니다.
// 잔여 감사 기록이 플러시되도록 Recorder를 Repository보다 먼저 닫는다.
func (a *App) Close() {
	if a.AuditRecorder != nil {
		a.AuditRecorder.Close()
	}
	if a.AuditRepository != nil {
		a.AuditRepository.Close()
	}
	if a.VerdictStore != nil {
		a.VerdictStore.Close()
	}
	if a.Registry != nil {
		a.Registry.Close()
	}
}
