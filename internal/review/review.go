// Package review implements the manual correction and archive workflow for
// imported case files.
package review

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/casefile"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/extractor"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/internal/storage"
	"github.com/JustJay7/case-archive/pkg/logger"
)

// Bucket filters of ListPending.
const (
	BucketPending = "pending"
	BucketFailed  = "failed"
)

type Service struct {
	db        *gorm.DB
	files     *casefile.Service
	store     storage.FileStore
	extractor extractor.TextExtractor
	fields    llm.FieldExtractor
	logger    *logger.Logger
}

func NewService(db *gorm.DB, files *casefile.Service, store storage.FileStore, ext extractor.TextExtractor, fields llm.FieldExtractor, log *logger.Logger) *Service {
	return &Service{
		db:        db,
		files:     files,
		store:     store,
		extractor: ext,
		fields:    fields,
		logger:    log,
	}
}

// PendingItem is one row of the review queue.
type PendingItem struct {
	ID             uint                   `json:"id"`
	CaseNo         string                 `json:"caseNo"`
	Name           string                 `json:"name"`
	BatchName      string                 `json:"batchName"`
	Size           int64                  `json:"size"`
	FileType       string                 `json:"fileType"`
	Status         string                 `json:"status"`
	CreatedAt      time.Time              `json:"createdAt"`
	ExtractedData  map[string]interface{} `json:"extractedData"`
	OcrText        string                 `json:"ocrText"`
	Classification llm.Classification     `json:"classification"`
	Tags           []string               `json:"tags"`
}

func toPendingItem(cf *database.CaseFile) PendingItem {
	name := cf.MetaString("originalFilename")
	if name == "" {
		name = cf.CaseName
	}
	return PendingItem{
		ID:            cf.ID,
		CaseNo:        cf.CaseNo,
		Name:          name,
		BatchName:     cf.MetaString("batchName"),
		Size:          cf.FileSize,
		FileType:      cf.FileType,
		Status:        cf.Status,
		CreatedAt:     cf.CreatedAt,
		ExtractedData: casefile.ExtractedData(cf),
		OcrText:       cf.OcrText,
		Classification: llm.Classification{
			Level1: cf.ClassificationLevel1,
			Level2: cf.ClassificationLevel2,
			Level3: cf.ClassificationLevel3,
		},
		Tags: cf.TagList(),
	}
}

// ListPending returns files awaiting review. Completed files are never
// included.
func (s *Service) ListPending(ctx context.Context, bucket string, page database.Page) ([]PendingItem, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.CaseFile{})
	switch bucket {
	case BucketPending:
		q = q.Where("status = ?", database.StatusPending)
	case BucketFailed:
		q = q.Where("status = ?", database.StatusFailed)
	default:
		q = q.Where("status IN ?", []string{database.StatusPending, database.StatusFailed})
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	var rows []database.CaseFile
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	items := make([]PendingItem, 0, len(rows))
	for i := range rows {
		items = append(items, toPendingItem(&rows[i]))
	}
	return items, total, nil
}

func (s *Service) save(ctx context.Context, cf *database.CaseFile) error {
	if err := s.db.WithContext(ctx).Save(cf).Error; err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// SaveReview merges reviewer corrections. Status is unchanged.
func (s *Service) SaveReview(ctx context.Context, id uint, fields casefile.ReviewFields) (*database.CaseFile, error) {
	cf, err := s.files.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	casefile.ApplyFields(cf, fields.CaseFields())
	if err := s.save(ctx, cf); err != nil {
		return nil, err
	}
	s.logger.Info("Review saved", "case_file_id", id)
	return cf, nil
}

// Archive merges the corrections and marks the file completed. Archiving a
// completed file is a successful no-op.
func (s *Service) Archive(ctx context.Context, id uint, fields casefile.ReviewFields) (*database.CaseFile, error) {
	cf, err := s.files.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cf.Status == database.StatusCompleted {
		return cf, nil
	}

	casefile.ApplyFields(cf, fields.CaseFields())
	cf.Status = database.StatusCompleted
	if err := s.save(ctx, cf); err != nil {
		return nil, err
	}
	s.logger.Info("Case file archived", "case_file_id", id)
	return cf, nil
}

// ReExtract runs field extraction again, re-parsing the stored original when
// no text was kept.
func (s *Service) ReExtract(ctx context.Context, id uint) (*database.CaseFile, error) {
	cf, err := s.files.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	text := cf.OcrText
	if strings.TrimSpace(text) == "" && cf.FilePath != "" {
		data, err := storage.ReadAll(ctx, s.store, cf.FilePath)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("Stored original missing", "case_file_id", id, "location", cf.FilePath)
		case err != nil:
			return nil, apperror.Internal(err)
		default:
			name := cf.MetaString("originalFilename")
			if name == "" {
				name = cf.FilePath
			}
			text = s.extractor.Extract(data, name)
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperror.New(apperror.CodeInvalidState, http.StatusBadRequest, "no usable text to extract fields from")
	}

	fields, err := s.fields.ExtractFields(ctx, text)
	if err != nil {
		s.logger.Warn("Re-extraction failed", "case_file_id", id, "error", err)
		if cf.Status == database.StatusPending {
			if uerr := s.db.WithContext(ctx).Model(cf).Update("status", database.StatusFailed).Error; uerr != nil {
				s.logger.Error("Failed to mark case file failed", "case_file_id", id, "error", uerr)
			}
		}
		return nil, apperror.Unprocessable("field extraction failed", err)
	}

	casefile.ApplyFields(cf, fields)
	cf.OcrText = text
	if cf.Status == database.StatusFailed {
		cf.Status = database.StatusPending
	}
	meta := cf.Meta()
	meta["extraction"] = map[string]interface{}{"status": "ok", "reextractedAt": time.Now().Format(time.RFC3339)}
	cf.MetaData = datatypes.JSONMap(meta)
	if err := s.save(ctx, cf); err != nil {
		return nil, err
	}
	s.logger.Info("Case file re-extracted", "case_file_id", id)
	return cf, nil
}

// Delete hard deletes a case file regardless of status.
func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.files.Delete(ctx, id)
}
