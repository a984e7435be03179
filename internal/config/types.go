package config

import (
	"net"
	"net/url"
	"strconv"
)

// 모델 엔진 프로바이더 식별자.
const (
	ProviderGemini = "gemini"
	ProviderStatic = "static"
)

// ModelBinding: 가디언 한 개가 참조하는 모델 바인딩 설정입니다.
// 서로 다른 가디언이 같은 Key를 쓰면 같은 ManagedModel을 공유한다.
type ModelBinding struct {
	Key            string
	Provider       string
	Model          string
	WeightsPath    string
	ApproxMemoryMB int
	Threads        int
	Temperature    float64
	MaxTokens      int
}

// GuardianConfig: 파이프라인 단계 한 개의 설정입니다.
type GuardianConfig struct {
	Enabled        bool
	TimeoutSeconds int
	Binding        ModelBinding
}

// ModelsConfig: 모델 레지스트리 전역 설정입니다.
type ModelsConfig struct {
	MemoryBudgetMB int
}

// GeminiConfig: Gemini 엔진 공통 설정입니다.
type GeminiConfig struct {
	APIKeys         []string
	TimeoutSeconds  int
	MaxOutputTokens int
}

// PrimaryKey: 기본 API 키를 반환합니다.
func (g GeminiConfig) PrimaryKey() string {
	if len(g.APIKeys) == 0 {
		return ""
	}
	return g.APIKeys[0]
}

// NormalizerConfig: 역난독화 단계별 토글과 한계값 설정입니다.
type NormalizerConfig struct {
	FoldUnicode        bool
	ComposeJamo        bool
	StripInvisible     bool
	DecodeLeetspeak    bool
	DecodeBase64       bool
	Base64MaxDepth     int
	Base64MaxOutputKB  int
	StripEmoji         bool
	SqueezeRepeats     bool
	CacheMaxSize       int
	CacheTTLSeconds    int
}

// PolicyConfig: 정책 팩 로딩 설정입니다.
type PolicyConfig struct {
	Dir string
}

// PipelineConfig: 검사 파이프라인 설정입니다.
type PipelineConfig struct {
	DefaultStageTimeoutSeconds int
}

// VerdictStoreConfig: 판정 결과 캐시 저장소 설정입니다.
type VerdictStoreConfig struct {
	URL          string
	Enabled      bool
	Required     bool
	DisableCache bool
	TTLMinutes   int
	MaxEntries   int
}

// LoggingConfig: 로깅 설정입니다.
type LoggingConfig struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig: HTTP 서버 설정입니다.
type HTTPConfig struct {
	Host         string
	Port         int
	HTTP2Enabled bool
	GzipEnabled  bool
}

// HTTPAuthConfig: API 키 인증 설정입니다.
type HTTPAuthConfig struct {
	APIKey string
}

// HTTPRateLimitConfig: 요청 제한 설정입니다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTLSeconds   int
}

// DatabaseConfig: 감사 기록 DB 연결 및 배치 설정입니다.
type DatabaseConfig struct {
	Enabled                      bool
	Host                         string
	Port                         int
	Name                         string
	User                         string
	Password                     string
	MinPool                      int
	MaxPool                      int
	ConnMaxLifetimeMinutes       int
	ConnMaxIdleTimeMinutes       int
	AuditBatchEnabled            bool
	AuditBatchFlushIntervalSecs  int
	AuditBatchFlushTimeoutSecs   int
	AuditBatchMaxPendingRecords  int
}

// DSN: DB 접속 문자열을 반환합니다.
func (d DatabaseConfig) DSN() string {
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// Config: 애플리케이션 전체 설정입니다.
type Config struct {
	Gemini         GeminiConfig
	Models         ModelsConfig
	InputGuardian  GuardianConfig
	Honeypot       GuardianConfig
	OutputGuardian GuardianConfig
	Normalizer     NormalizerConfig
	Policy         PolicyConfig
	Pipeline       PipelineConfig
	VerdictStore   VerdictStoreConfig
	Logging        LoggingConfig
	HTTP           HTTPConfig
	HTTPAuth       HTTPAuthConfig
	HTTPRateLimit  HTTPRateLimitConfig
	Database       DatabaseConfig
}

// Guardians: 세 단계 설정을 파이프라인 순서로 반환합니다.
func (c *Config) Guardians() []GuardianConfig {
	return []GuardianConfig{c.InputGuardian, c.Honeypot, c.OutputGuardian}
}
