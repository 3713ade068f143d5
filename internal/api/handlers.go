package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/auth"
	"github.com/JustJay7/case-archive/internal/cache"
	"github.com/JustJay7/case-archive/internal/casefile"
	"github.com/JustJay7/case-archive/internal/classification"
	"github.com/JustJay7/case-archive/internal/config"
	"github.com/JustJay7/case-archive/internal/contentreview"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/docgen"
	"github.com/JustJay7/case-archive/internal/importer"
	"github.com/JustJay7/case-archive/internal/ocr"
	"github.com/JustJay7/case-archive/internal/review"
	"github.com/JustJay7/case-archive/internal/stats"
	"github.com/JustJay7/case-archive/internal/templates"
	"github.com/JustJay7/case-archive/internal/users"
	"github.com/JustJay7/case-archive/pkg/logger"
)

// Deps are the services the handlers delegate to.
type Deps struct {
	Config         *config.Config
	DB             *gorm.DB
	Cache          cache.Cache
	Logger         *logger.Logger
	Auth           *auth.Service
	Users          *users.Service
	Audit          *audit.Service
	CaseFiles      *casefile.Service
	Importer       *importer.Importer
	Review         *review.Service
	Classification *classification.Service
	OCR            *ocr.Service
	Templates      *templates.Service
	DocGen         *docgen.Service
	ContentReview  *contentreview.Service
	Stats          *stats.Service
}

// Handlers holds all HTTP handlers
type Handlers struct {
	cfg            *config.Config
	db             *gorm.DB
	cache          cache.Cache
	logger         *logger.Logger
	auth           *auth.Service
	users          *users.Service
	audit          *audit.Service
	files          *casefile.Service
	importer       *importer.Importer
	review         *review.Service
	classification *classification.Service
	ocr            *ocr.Service
	templates      *templates.Service
	docgen         *docgen.Service
	contentReview  *contentreview.Service
	stats          *stats.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		cfg:            d.Config,
		db:             d.DB,
		cache:          d.Cache,
		logger:         d.Logger,
		auth:           d.Auth,
		users:          d.Users,
		audit:          d.Audit,
		files:          d.CaseFiles,
		importer:       d.Importer,
		review:         d.Review,
		classification: d.Classification,
		ocr:            d.OCR,
		templates:      d.Templates,
		docgen:         d.DocGen,
		contentReview:  d.ContentReview,
		stats:          d.Stats,
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbHealthy := database.Ping(h.db) == nil

	status := "healthy"
	code := http.StatusOK
	if !dbHealthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": dbHealthy,
		"cache":    h.cache.Stats(),
		"time":     time.Now().Unix(),
	})
}

// readUpload reads one multipart file, refusing anything over the upload
// limit.
func (h *Handlers) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.cfg.MaxUploadSize {
		return nil, apperror.BadRequest("file exceeds the size limit")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeBadRequest, http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxUploadSize+1))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeBadRequest, http.StatusBadRequest, "cannot read uploaded file")
	}
	if int64(len(data)) > h.cfg.MaxUploadSize {
		return nil, apperror.BadRequest("file exceeds the size limit")
	}
	return data, nil
}

// formFile returns the named multipart file.
func formFile(c *gin.Context, field string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "file is required")
	}
	return fh, nil
}
