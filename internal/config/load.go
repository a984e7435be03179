package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joho/godotenv"
)

var (
	configOnce  sync.Once
	configValue *Config
)

// Load 는 환경 변수 기반 설정을 로드한다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig 는 설정을 로드하고 검증한다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 설정 유효성을 검사한다.
// 요청 시점이 아니라 로드 시점에 한 번만 수행된다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	stages := map[string]GuardianConfig{
		"input_guardian":  c.InputGuardian,
		"honeypot":        c.Honeypot,
		"output_guardian": c.OutputGuardian,
	}
	for stage, guardian := range stages {
		if !guardian.Enabled {
			continue
		}
		switch guardian.Binding.Provider {
		case ProviderGemini, ProviderStatic:
		default:
			return fmt.Errorf("unknown model provider for %s: %q", stage, guardian.Binding.Provider)
		}
		if guardian.Binding.Key == "" {
			return fmt.Errorf("model binding key missing for %s", stage)
		}
		if guardian.TimeoutSeconds <= 0 {
			return fmt.Errorf("stage timeout must be positive for %s", stage)
		}
	}

	if c.OutputGuardian.Enabled && !c.Honeypot.Enabled {
		// 허니팟이 꺼지면 출력 가디언이 검사할 생성 텍스트가 없다.
		return errors.New("output_guardian requires honeypot to be enabled")
	}

	if c.Normalizer.Base64MaxDepth <= 0 {
		return errors.New("normalizer base64 max depth must be positive")
	}
	if c.Normalizer.Base64MaxOutputKB <= 0 {
		return errors.New("normalizer base64 output ceiling must be positive")
	}
	if c.Models.MemoryBudgetMB <= 0 {
		return errors.New("model memory budget must be positive")
	}
	return nil
}

// LogEnvStatus 는 환경 설정 상태를 로그로 남긴다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	envFilePresent := fileExists(".env")
	primaryKey := maskSecret(cfg.Gemini.PrimaryKey())
	logger.Debug(
		"env_status",
		"env_file", envFilePresent,
		"gemini_keys", len(cfg.Gemini.APIKeys),
		"primary_key", primaryKey,
		"input_guardian", cfg.InputGuardian.Enabled,
		"honeypot", cfg.Honeypot.Enabled,
		"output_guardian", cfg.OutputGuardian.Enabled,
		"policy_dir", cfg.Policy.Dir,
		"memory_budget_mb", cfg.Models.MemoryBudgetMB,
		"verdict_store_url", cfg.VerdictStore.URL,
		"db_enabled", cfg.Database.Enabled,
	)

	if !cfg.InputGuardian.Enabled {
		logger.Warn("input_guardian_disabled")
	}
	if !cfg.Honeypot.Enabled {
		logger.Info("honeypot_disabled_fast_mode")
	}
	if needsGeminiKey(cfg) && len(cfg.Gemini.APIKeys) == 0 {
		logger.Error("env_missing_google_api_key")
	}
}

func needsGeminiKey(cfg *Config) bool {
	for _, guardian := range cfg.Guardians() {
		if guardian.Enabled && guardian.Binding.Provider == ProviderGemini {
			return true
		}
	}
	return false
}

func buildConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			APIKeys:         parseAPIKeys(),
			TimeoutSeconds:  getEnvInt("GEMINI_TIMEOUT", 60),
			MaxOutputTokens: getEnvInt("GEMINI_MAX_TOKENS", 1024),
		},
		Models: ModelsConfig{
			MemoryBudgetMB: getEnvInt("MODEL_MEMORY_BUDGET_MB", 8192),
		},
		InputGuardian: GuardianConfig{
			Enabled:        getEnvBool("INPUT_GUARDIAN_ENABLED", true),
			TimeoutSeconds: getEnvInt("INPUT_GUARDIAN_TIMEOUT", 20),
			Binding: ModelBinding{
				Key:            getEnvString("INPUT_GUARDIAN_MODEL_KEY", "guardian-core"),
				Provider:       getEnvString("INPUT_GUARDIAN_PROVIDER", ProviderGemini),
				Model:          getEnvString("INPUT_GUARDIAN_MODEL", "gemini-3-flash-preview"),
				WeightsPath:    getEnvString("INPUT_GUARDIAN_WEIGHTS", ""),
				ApproxMemoryMB: getEnvInt("INPUT_GUARDIAN_MEMORY_MB", 2048),
				Threads:        getEnvInt("INPUT_GUARDIAN_THREADS", 4),
				Temperature:    getEnvFloat("INPUT_GUARDIAN_TEMPERATURE", 0.1),
				MaxTokens:      getEnvInt("INPUT_GUARDIAN_MAX_TOKENS", 256),
			},
		},
		Honeypot: GuardianConfig{
			Enabled:        getEnvBool("HONEYPOT_ENABLED", true),
			TimeoutSeconds: getEnvInt("HONEYPOT_TIMEOUT", 30),
			Binding: ModelBinding{
				Key:            getEnvString("HONEYPOT_MODEL_KEY", "honeypot"),
				Provider:       getEnvString("HONEYPOT_PROVIDER", ProviderGemini),
				Model:          getEnvString("HONEYPOT_MODEL", "gemini-3-flash-preview"),
				WeightsPath:    getEnvString("HONEYPOT_WEIGHTS", ""),
				ApproxMemoryMB: getEnvInt("HONEYPOT_MEMORY_MB", 1024),
				Threads:        getEnvInt("HONEYPOT_THREADS", 4),
				Temperature:    getEnvFloat("HONEYPOT_TEMPERATURE", 0.9),
				MaxTokens:      getEnvInt("HONEYPOT_MAX_TOKENS", 192),
			},
		},
		OutputGuardian: GuardianConfig{
			Enabled:        getEnvBool("OUTPUT_GUARDIAN_ENABLED", true),
			TimeoutSeconds: getEnvInt("OUTPUT_GUARDIAN_TIMEOUT", 20),
			Binding: ModelBinding{
				// 기본값은 input_guardian과 같은 모델을 공유한다.
				Key:            getEnvString("OUTPUT_GUARDIAN_MODEL_KEY", "guardian-core"),
				Provider:       getEnvString("OUTPUT_GUARDIAN_PROVIDER", ProviderGemini),
				Model:          getEnvString("OUTPUT_GUARDIAN_MODEL", "gemini-3-flash-preview"),
				WeightsPath:    getEnvString("OUTPUT_GUARDIAN_WEIGHTS", ""),
				ApproxMemoryMB: getEnvInt("OUTPUT_GUARDIAN_MEMORY_MB", 2048),
				Threads:        getEnvInt("OUTPUT_GUARDIAN_THREADS", 4),
				Temperature:    getEnvFloat("OUTPUT_GUARDIAN_TEMPERATURE", 0.1),
				MaxTokens:      getEnvInt("OUTPUT_GUARDIAN_MAX_TOKENS", 256),
			},
		},
		Normalizer: NormalizerConfig{
			FoldUnicode:       getEnvBool("NORMALIZER_FOLD_UNICODE", true),
			ComposeJamo:       getEnvBool("NORMALIZER_COMPOSE_JAMO", true),
			StripInvisible:    getEnvBool("NORMALIZER_STRIP_INVISIBLE", true),
			DecodeLeetspeak:   getEnvBool("NORMALIZER_DECODE_LEETSPEAK", true),
			DecodeBase64:      getEnvBool("NORMALIZER_DECODE_BASE64", true),
			Base64MaxDepth:    getEnvInt("NORMALIZER_BASE64_MAX_DEPTH", 5),
			Base64MaxOutputKB: getEnvInt("NORMALIZER_BASE64_MAX_OUTPUT_KB", 64),
			StripEmoji:        getEnvBool("NORMALIZER_STRIP_EMOJI", true),
			SqueezeRepeats:    getEnvBool("NORMALIZER_SQUEEZE_REPEATS", true),
			CacheMaxSize:      getEnvInt("NORMALIZER_CACHE_SIZE", 10000),
			CacheTTLSeconds:   getEnvInt("NORMALIZER_CACHE_TTL", 3600),
		},
		Policy: PolicyConfig{
			Dir: getEnvString("POLICY_DIR", "policies"),
		},
		Pipeline: PipelineConfig{
			DefaultStageTimeoutSeconds: getEnvInt("PIPELINE_STAGE_TIMEOUT", 30),
		},
		VerdictStore: VerdictStoreConfig{
			URL:          getEnvString("VERDICT_STORE_URL", "redis://localhost:6379"),
			Enabled:      getEnvBool("VERDICT_STORE_ENABLED", false),
			Required:     getEnvBool("VERDICT_STORE_REQUIRED", false),
			DisableCache: getEnvBool("VERDICT_STORE_DISABLE_CACHE", false),
			TTLMinutes:   getEnvInt("VERDICT_STORE_TTL_MINUTES", 60),
			MaxEntries:   getEnvInt("VERDICT_STORE_MAX_ENTRIES", 10000),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 1),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:         getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:         getEnvInt("HTTP_PORT", 40811),
			HTTP2Enabled: getEnvBool("HTTP2_ENABLED", true),
			GzipEnabled:  getEnvBool("HTTP_GZIP_ENABLED", true),
		},
		HTTPAuth: HTTPAuthConfig{
			APIKey: getEnvString("HTTP_API_KEY", ""),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 120)),
		},
		Database: DatabaseConfig{
			Enabled:                     getEnvBool("DB_ENABLED", false),
			Host:                        getEnvString("DB_HOST", "localhost"),
			Port:                        getEnvInt("DB_PORT", 5432),
			Name:                        getEnvString("DB_NAME", "svalinn"),
			User:                        getEnvString("DB_USER", "svalinn"),
			Password:                    getEnvString("DB_PASSWORD", ""),
			MinPool:                     getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                     getEnvInt("DB_MAX_POOL", 5),
			ConnMaxLifetimeMinutes:      getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 60),
			ConnMaxIdleTimeMinutes:      getEnvNonNegativeInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
			AuditBatchEnabled:           getEnvBool("DB_AUDIT_BATCH_ENABLED", false),
			AuditBatchFlushIntervalSecs: max(1, getEnvNonNegativeInt("DB_AUDIT_BATCH_FLUSH_INTERVAL_SECONDS", 1)),
			AuditBatchFlushTimeoutSecs:  max(1, getEnvNonNegativeInt("DB_AUDIT_BATCH_FLUSH_TIMEOUT_SECONDS", 5)),
			AuditBatchMaxPendingRecords: max(1, getEnvNonNegativeInt("DB_AUDIT_BATCH_MAX_PENDING_RECORDS", 256)),
		},
	}
}
