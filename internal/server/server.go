package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/api"
	"github.com/JustJay7/case-archive/internal/config"
	"github.com/JustJay7/case-archive/internal/ratelimit"
	"github.com/JustJay7/case-archive/internal/render"
	"github.com/JustJay7/case-archive/pkg/logger"
)

type Server struct {
	cfg      *config.Config
	logger   *logger.Logger
	router   *gin.Engine
	renderer render.PDFRenderer
}

// New builds the router. limiter may be nil when rate limiting is disabled.
func New(cfg *config.Config, deps api.Deps, limiter ratelimit.Limiter, renderer render.PDFRenderer) *Server {
	if gin.Mode() != gin.TestMode {
		if cfg.LogLevel == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	log := deps.Logger
	router := gin.New()
	router.MaxMultipartMemory = 32 << 20

	m := newMetrics()

	router.Use(recoveryMiddleware(log, cfg.IsProduction()))
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(log))
	router.Use(securityHeadersMiddleware())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(m.middleware())
	if limiter != nil {
		router.Use(rateLimitMiddleware(limiter, log))
	}
	router.Use(sanitizeMiddleware(log))

	router.GET("/metrics", m.handler())
	api.SetupRoutes(router, deps)

	return &Server{
		cfg:      cfg,
		logger:   log,
		router:   router,
		renderer: renderer,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
		// Batch uploads and generation streams run for as long as the files
		// and the model take, so only the header read is bounded.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("Failed to start server", "error", err)
		}
	}()

	s.logger.Info("Server started", "address", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.renderer != nil {
		if err := s.renderer.Close(); err != nil {
			s.logger.Error("Failed to close renderer", "error", err)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", "error", err)
		return err
	}

	s.logger.Info("Server exited gracefully")
	return nil
}
