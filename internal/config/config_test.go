package config

import (
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "PORT", "CACHE_TTL", "JWT_EXPIRE_MINUTES", "RATE_LIMIT_PERIOD", "ALLOWED_EXTENSIONS",
		"MAX_IMPORT_FILES", "DATABASE_DRIVER", "STORAGE_BACKEND", "APP_ENV")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	if cfg.JWTExpire != 30*time.Minute {
		t.Errorf("JWTExpire = %v", cfg.JWTExpire)
	}
	if cfg.RateLimitPeriod != time.Minute {
		t.Errorf("RateLimitPeriod = %v", cfg.RateLimitPeriod)
	}
	if cfg.MaxImportFiles != 100 {
		t.Errorf("MaxImportFiles = %d", cfg.MaxImportFiles)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.StorageBackend != "local" {
		t.Errorf("driver %q backend %q", cfg.DatabaseDriver, cfg.StorageBackend)
	}
	if cfg.IsProduction() {
		t.Error("development config reported as production")
	}
}

func TestLoadLists(t *testing.T) {
	t.Setenv("ALLOWED_EXTENSIONS", " .PDF, .Docx ,,")
	t.Setenv("CORS_ORIGINS", "http://A.example, http://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := []string{".pdf", ".docx"}; !reflect.DeepEqual(cfg.AllowedExtensions, want) {
		t.Errorf("AllowedExtensions = %v, want %v", cfg.AllowedExtensions, want)
	}
	if want := []string{"http://A.example", "http://b.example"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
	}
}

func TestLoadInvalidNumbers(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CACHE_SIZE", "many"},
		{"MAX_UPLOAD_SIZE", "1GB"},
		{"JWT_EXPIRE_MINUTES", "half-hour"},
		{"RATE_LIMIT_CALLS", "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected an error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLLMKeyFallback(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("DASHSCOPE_API_KEY", "sk-dashscope")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("QWEN_MODEL", "qwen-max")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMAPIKey != "sk-dashscope" {
		t.Errorf("LLMAPIKey = %q", cfg.LLMAPIKey)
	}
	if cfg.LLMModel != "qwen-max" {
		t.Errorf("LLMModel = %q", cfg.LLMModel)
	}

	t.Setenv("LLM_API_KEY", "sk-primary")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMAPIKey != "sk-primary" {
		t.Errorf("LLMAPIKey = %q", cfg.LLMAPIKey)
	}
}
