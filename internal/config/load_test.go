package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	guardian := GuardianConfig{
		Enabled:        true,
		TimeoutSeconds: 10,
		Binding: ModelBinding{
			Key:            "guardian-core",
			Provider:       ProviderStatic,
			Model:          "static-guardian",
			ApproxMemoryMB: 256,
		},
	}
	return &Config{
		Models:         ModelsConfig{MemoryBudgetMB: 1024},
		InputGuardian:  guardian,
		Honeypot:       guardian,
		OutputGuardian: guardian,
		Normalizer: NormalizerConfig{
			Base64MaxDepth:    3,
			Base64MaxOutputKB: 64,
		},
	}
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.InputGuardian.Binding.Provider = "llamacpp"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown model provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestValidateRejectsMissingBindingKey(t *testing.T) {
	cfg := validConfig()
	cfg.Honeypot.Binding.Key = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected binding key error")
	}
}

func TestValidateRejectsOutputGuardianWithoutHoneypot(t *testing.T) {
	cfg := validConfig()
	cfg.Honeypot.Enabled = false
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "honeypot") {
		t.Fatalf("expected honeypot dependency error, got %v", err)
	}

	// 둘 다 끄면 통과한다.
	cfg.OutputGuardian.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Normalizer.Base64MaxDepth = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected base64 depth error")
	}

	cfg = validConfig()
	cfg.Models.MemoryBudgetMB = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected memory budget error")
	}
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Name:     "svalinn",
		User:     "svalinn",
		Password: "p@ss/word",
	}
	dsn := db.DSN()
	if !strings.HasPrefix(dsn, "postgresql://") {
		t.Fatalf("unexpected scheme: %s", dsn)
	}
	if !strings.Contains(dsn, "localhost:5432") || !strings.Contains(dsn, "/svalinn") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	// 특수문자가 인코딩되어야 한다.
	if strings.Contains(dsn, "p@ss/word") {
		t.Fatalf("password must be escaped: %s", dsn)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "  value  ")
	if got := getEnvString("TEST_STR", "def"); got != "value" {
		t.Fatalf("unexpected string: %q", got)
	}
	if got := getEnvString("TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("unexpected default: %q", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Fatalf("unexpected int: %d", got)
	}
	t.Setenv("TEST_INT_BAD", "not-a-number")
	if got := getEnvInt("TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("expected fallback, got %d", got)
	}

	t.Setenv("TEST_NEG", "-5")
	if got := getEnvNonNegativeInt("TEST_NEG", 3); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}

	t.Setenv("TEST_BOOL", "on")
	if !getEnvBool("TEST_BOOL", false) {
		t.Fatalf("expected true for 'on'")
	}
	t.Setenv("TEST_BOOL", "off")
	if getEnvBool("TEST_BOOL", true) {
		t.Fatalf("expected false for 'off'")
	}
}

func TestParseAPIKeys(t *testing.T) {
	t.Setenv("GOOGLE_API_KEYS", "key-a, key-b\nkey-c")
	keys := parseAPIKeys()
	if len(keys) != 3 || keys[0] != "key-a" || keys[2] != "key-c" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	t.Setenv("GOOGLE_API_KEYS", "")
	t.Setenv("GOOGLE_API_KEY", "single")
	keys = parseAPIKeys()
	if len(keys) != 1 || keys[0] != "single" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := maskSecret("short"); got != "****" {
		t.Fatalf("unexpected mask: %q", got)
	}
	masked := maskSecret("abcd1234efgh5678")
	if !strings.HasPrefix(masked, "abcd") || !strings.HasSuffix(masked, "5678") || strings.Contains(masked, "1234efgh") {
		t.Fatalf("unexpected mask: %q", masked)
	}
}
