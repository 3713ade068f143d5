package server

import (
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/JustJay7/case-archive/internal/api"
	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/ratelimit"
	"github.com/JustJay7/case-archive/pkg/logger"
)

func abortWith(c *gin.Context, appErr *apperror.AppError, data interface{}) {
	c.AbortWithStatusJSON(appErr.Status, gin.H{
		"errorCode": appErr.Code,
		"message":   appErr.Message,
		"data":      data,
	})
}

// recoveryMiddleware turns a panic into a 500 envelope. The panic value and
// stack are only returned outside production.
func recoveryMiddleware(logger *logger.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := string(debug.Stack())
			logger.Error("Panic recovered",
				"request_id", c.GetString(api.RequestIDKey),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", fmt.Sprint(rec),
				"stack", stack,
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			var data interface{}
			if !production {
				data = gin.H{"panic": fmt.Sprint(rec), "stack": stack}
			}
			abortWith(c, apperror.New(apperror.CodeInternal, http.StatusInternalServerError, "internal server error"), data)
		}()
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 100 {
			id = uuid.NewString()
		}
		c.Set(api.RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func loggingMiddleware(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()

		// Download links carry the bearer token in the query string.
		if raw != "" && c.Query("token") == "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP Request",
			"request_id", c.GetString(api.RequestIDKey),
			"client_ip", clientIP,
			"method", method,
			"path", path,
			"status", statusCode,
			"latency", latency.String(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data:; " +
	"connect-src 'self'; " +
	"frame-ancestors 'none';"

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "X-Request-ID", "X-Requested-With", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

var unlimitedPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// rateLimitMiddleware applies the limiter per client IP. Limiter errors let
// the request through.
func rateLimitMiddleware(limiter ratelimit.Limiter, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if unlimitedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			logger.Warn("Rate limit exceeded", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
			abortWith(c, apperror.TooManyRequests("请求过于频繁，请稍后再试"), nil)
			return
		}
		c.Next()
	}
}

var sqlPattern = regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop|create|alter|exec|execute)\b|--|/\*|\*/|;|'|"|\bxp_|\bsp_`)

// Free text search parameters and the download token are not inspected.
var sanitizeExempt = map[string]bool{
	"keyword":  true,
	"username": true,
	"token":    true,
}

func sanitizeMiddleware(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		for key, values := range c.Request.URL.Query() {
			if sanitizeExempt[key] {
				continue
			}
			for _, v := range values {
				if sqlPattern.MatchString(v) {
					if len(v) > 50 {
						v = v[:50]
					}
					logger.Warn("Suspicious query parameter", "path", c.Request.URL.Path, "param", key, "value", v)
					abortWith(c, apperror.New(apperror.CodeInvalidInput, http.StatusBadRequest, "请求参数包含非法字符"), nil)
					return
				}
			}
		}
		c.Next()
	}
}
