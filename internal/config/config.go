package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host    string
	Port    string
	AppName string
	AppEnv  string

	// Database settings
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Cache settings
	CacheSize int
	CacheTTL  time.Duration

	// Upload settings
	UploadDir         string
	MaxUploadSize     int64
	MaxImportFiles    int
	AllowedExtensions []string

	// Storage settings
	StorageBackend string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Auth settings
	JWTSecretKey        string
	JWTExpire           time.Duration
	RSAKeyDir           string
	MaxLoginAttempts    int
	LoginLockout        time.Duration
	AdminUsername       string
	AdminPassword       string
	PasswordMinLength   int
	PasswordNeedUpper   bool
	PasswordNeedLower   bool
	PasswordNeedDigit   bool
	PasswordNeedSpecial bool

	// Rate limiting
	RateLimitEnabled bool
	RateLimitCalls   int
	RateLimitPeriod  time.Duration
	RateLimitBackend string
	RedisAddr        string
	RedisPassword    string

	// CORS
	CORSOrigins []string

	// Language model settings
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	// Document rendering
	PDFRenderEnabled bool
	BrowserPath      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not an error if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		AppName:        getEnv("APP_NAME", "case-archive"),
		AppEnv:         getEnv("APP_ENV", "development"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/case_archive.db"),
		DatabaseDSN:    getEnv("DATABASE_DSN", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "case-archive"),
		JWTSecretKey:   getEnv("JWT_SECRET_KEY", "dev-jwt-secret-key"),
		RSAKeyDir:      getEnv("RSA_KEY_DIR", "./keys"),
		AdminUsername:  getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		LLMAPIKey:      getEnv("LLM_API_KEY", os.Getenv("DASHSCOPE_API_KEY")),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		LLMModel:       getEnv("LLM_MODEL", getEnv("QWEN_MODEL", "qwen-plus")),
		BrowserPath:    getEnv("ROD_BROWSER_PATH", ""),
	}

	cfg.AllowedExtensions = splitList(getEnv("ALLOWED_EXTENSIONS", ".pdf,.doc,.docx,.txt,.jpg,.jpeg,.png"), true)
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost,http://127.0.0.1,http://localhost:5173,http://127.0.0.1:5173"), false)

	// Parse integer values
	var err error
	cfg.CacheSize, err = strconv.Atoi(getEnv("CACHE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_SIZE: %w", err)
	}

	cacheTTL, err := strconv.Atoi(getEnv("CACHE_TTL", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = time.Duration(cacheTTL) * time.Minute

	cfg.MaxUploadSize, err = strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE", "524288000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}

	cfg.MaxImportFiles, err = strconv.Atoi(getEnv("MAX_IMPORT_FILES", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_IMPORT_FILES: %w", err)
	}

	jwtExpire, err := strconv.Atoi(getEnv("JWT_EXPIRE_MINUTES", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRE_MINUTES: %w", err)
	}
	cfg.JWTExpire = time.Duration(jwtExpire) * time.Minute

	cfg.MaxLoginAttempts, err = strconv.Atoi(getEnv("MAX_LOGIN_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_LOGIN_ATTEMPTS: %w", err)
	}

	lockout, err := strconv.Atoi(getEnv("LOGIN_LOCKOUT_MINUTES", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_LOCKOUT_MINUTES: %w", err)
	}
	cfg.LoginLockout = time.Duration(lockout) * time.Minute

	cfg.PasswordMinLength, err = strconv.Atoi(getEnv("PASSWORD_MIN_LENGTH", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid PASSWORD_MIN_LENGTH: %w", err)
	}
	cfg.PasswordNeedUpper = getEnv("PASSWORD_REQUIRE_UPPERCASE", "true") == "true"
	cfg.PasswordNeedLower = getEnv("PASSWORD_REQUIRE_LOWERCASE", "true") == "true"
	cfg.PasswordNeedDigit = getEnv("PASSWORD_REQUIRE_DIGIT", "true") == "true"
	cfg.PasswordNeedSpecial = getEnv("PASSWORD_REQUIRE_SPECIAL", "true") == "true"

	cfg.RateLimitEnabled = getEnv("RATE_LIMIT_ENABLED", "true") == "true"
	cfg.RateLimitBackend = getEnv("RATE_LIMIT_BACKEND", "memory")
	cfg.RateLimitCalls, err = strconv.Atoi(getEnv("RATE_LIMIT_CALLS", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_CALLS: %w", err)
	}

	ratePeriod, err := strconv.Atoi(getEnv("RATE_LIMIT_PERIOD", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PERIOD: %w", err)
	}
	cfg.RateLimitPeriod = time.Duration(ratePeriod) * time.Second

	llmTimeout, err := strconv.Atoi(getEnv("LLM_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}
	cfg.LLMTimeout = time.Duration(llmTimeout) * time.Second

	cfg.MinioUseSSL = getEnv("MINIO_USE_SSL", "false") == "true"
	cfg.PDFRenderEnabled = getEnv("PDF_RENDER_ENABLED", "false") == "true"

	return cfg, nil
}

// IsProduction reports whether error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string, lower bool) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if lower {
			p = strings.ToLower(p)
		}
		out = append(out, p)
	}
	return out
}
