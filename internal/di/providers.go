package di

import (
	"fmt"
	"log/slog"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/logging"
)

// ProvideLogger: 로거를 구성해 반환합니다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// guardianBindings 는 활성화된 단계의 모델 바인딩만 모은다.
// 같은 Key를 공유하는 바인딩은 레지스트리가 한 번만 적재한다.
func guardianBindings(cfg *config.Config) []config.ModelBinding {
	var bindings []config.ModelBinding
	for _, guardian := range cfg.Guardians() {
		if guardian.Enabled {
			bindings = append(bindings, guardian.Binding)
		}
	}
	return bindings
}
