package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/api"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/auth"
	"github.com/JustJay7/case-archive/internal/cache"
	"github.com/JustJay7/case-archive/internal/casefile"
	"github.com/JustJay7/case-archive/internal/classification"
	"github.com/JustJay7/case-archive/internal/config"
	"github.com/JustJay7/case-archive/internal/contentreview"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/docgen"
	"github.com/JustJay7/case-archive/internal/extractor"
	"github.com/JustJay7/case-archive/internal/importer"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/internal/ocr"
	"github.com/JustJay7/case-archive/internal/ratelimit"
	"github.com/JustJay7/case-archive/internal/render"
	"github.com/JustJay7/case-archive/internal/review"
	"github.com/JustJay7/case-archive/internal/server"
	"github.com/JustJay7/case-archive/internal/stats"
	"github.com/JustJay7/case-archive/internal/storage"
	"github.com/JustJay7/case-archive/internal/templates"
	"github.com/JustJay7/case-archive/internal/users"
	"github.com/JustJay7/case-archive/pkg/logger"
)

func main() {
	var migrate bool
	flag.BoolVar(&migrate, "migrate", false, "Run database migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabasePath, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	if migrate {
		log.Info("Database migrations completed successfully")
		return
	}

	seedAdmin(db, cfg, log)

	store, err := newStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
	}

	keys, err := auth.LoadOrCreateKeys(cfg.RSAKeyDir)
	if err != nil {
		log.Fatal("Failed to load RSA keys", "dir", cfg.RSAKeyDir, "error", err)
	}

	var renderer render.PDFRenderer = render.Disabled{}
	if cfg.PDFRenderEnabled {
		renderer = render.NewBrowser(render.Config{BrowserPath: cfg.BrowserPath, Debug: cfg.LogLevel == "debug"}, log)
	}

	cacheService := cache.NewCache(cfg.CacheSize, cfg.CacheTTL)
	model := llm.NewClient(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}, log)
	if !model.Configured() {
		log.Warn("LLM_API_KEY is not set, field extraction and generation are unavailable")
	}

	auditService := audit.NewService(db, log)
	authService := auth.NewService(db,
		auth.NewTokenManager(cfg.JWTSecretKey, cfg.JWTExpire, cfg.AppName),
		keys,
		auth.NewLoginGuard(cfg.MaxLoginAttempts, cfg.LoginLockout),
		auth.NewRevocations(10000, cfg.JWTExpire),
		auditService,
		log,
	)
	textExtractor := extractor.New(log)
	files := casefile.NewService(db, store, log)
	templateService := templates.NewService(db, store, log)

	deps := api.Deps{
		Config:    cfg,
		DB:        db,
		Cache:     cacheService,
		Logger:    log,
		Auth:      authService,
		Users:     users.NewService(db, keys, passwordPolicy(cfg), log),
		Audit:     auditService,
		CaseFiles: files,
		Importer: importer.New(db, store, textExtractor, model, importer.Config{
			AllowedExtensions: cfg.AllowedExtensions,
			MaxUploadSize:     cfg.MaxUploadSize,
			MaxFiles:          cfg.MaxImportFiles,
		}, log),
		Review:         review.NewService(db, files, store, textExtractor, model, log),
		Classification: classification.NewService(db, log),
		OCR:            ocr.NewService(db, log),
		Templates:      templateService,
		DocGen:         docgen.NewService(db, store, templateService, model, renderer, log),
		ContentReview:  contentreview.NewService(model, log),
		Stats:          stats.NewService(db, files, cacheService, log),
	}

	srv := server.New(cfg, deps, newLimiter(cfg, log), renderer)

	log.Info("Starting case archive",
		"host", cfg.Host,
		"port", cfg.Port,
		"env", cfg.AppEnv,
		"database", cfg.DatabaseDriver,
		"storage", cfg.StorageBackend,
	)

	if err := srv.Run(); err != nil {
		log.Fatal("Server failed to start", "error", err)
	}
}

func passwordPolicy(cfg *config.Config) auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:   cfg.PasswordMinLength,
		NeedUpper:   cfg.PasswordNeedUpper,
		NeedLower:   cfg.PasswordNeedLower,
		NeedDigit:   cfg.PasswordNeedDigit,
		NeedSpecial: cfg.PasswordNeedSpecial,
	}
}

func newStore(cfg *config.Config) (storage.FileStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "", "local":
		return storage.NewLocal(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

func newLimiter(cfg *config.Config, log *logger.Logger) ratelimit.Limiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	if cfg.RateLimitBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, using in-memory rate limiting", "addr", cfg.RedisAddr, "error", err)
			_ = client.Close()
		} else {
			return ratelimit.NewRedis(client, cfg.RateLimitCalls, cfg.RateLimitPeriod)
		}
	}
	return ratelimit.NewMemory(cfg.RateLimitCalls, cfg.RateLimitPeriod)
}

// seedAdmin creates the first administrator. Without ADMIN_PASSWORD a random
// password is generated and logged once.
func seedAdmin(db *gorm.DB, cfg *config.Config, log *logger.Logger) {
	password := cfg.AdminPassword
	generated := password == ""
	if generated {
		buf := make([]byte, 9)
		if _, err := rand.Read(buf); err != nil {
			log.Fatal("Failed to generate admin password", "error", err)
		}
		password = "Aa1!" + hex.EncodeToString(buf)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal("Failed to hash admin password", "error", err)
	}
	created, err := database.SeedAdmin(db, cfg.AdminUsername, hash)
	if err != nil {
		log.Fatal("Failed to seed admin user", "error", err)
	}
	if !created {
		return
	}
	if generated {
		log.Warn("Created administrator with a generated password, change it after the first login",
			"username", cfg.AdminUsername, "password", password)
		return
	}
	log.Info("Created administrator", "username", cfg.AdminUsername)
}
