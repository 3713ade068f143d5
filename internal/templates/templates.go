// Package templates manages the .docx document templates used for document
// generation.
package templates

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/storage"
	"github.com/JustJay7/case-archive/pkg/logger"
)

// DocTypes are the document kinds templates and generation support.
var DocTypes = []string{
	"立案报告", "调查报告", "请示", "汇报", "通知", "函",
	"会议纪要", "工作总结", "统计分析报告", "形势分析报告", "案件卷宗",
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DocTypeOptions returns DocTypes as select options.
func DocTypeOptions() []Option {
	opts := make([]Option, 0, len(DocTypes))
	for _, t := range DocTypes {
		opts = append(opts, Option{Value: t, Label: t})
	}
	return opts
}

type Service struct {
	db     *gorm.DB
	store  storage.FileStore
	logger *logger.Logger
}

func NewService(db *gorm.DB, store storage.FileStore, log *logger.Logger) *Service {
	return &Service{db: db, store: store, logger: log}
}

type Filter struct {
	DocType string
	Keyword string
	Status  *int
}

// List returns templates most recently updated first.
func (s *Service) List(ctx context.Context, f Filter, page database.Page) ([]database.DocTemplate, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.DocTemplate{})
	if f.DocType != "" {
		q = q.Where("doc_type = ?", f.DocType)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		q = q.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	items := []database.DocTemplate{}
	if err := q.Order("updated_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&items).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// Enabled returns every template with status 1.
func (s *Service) Enabled(ctx context.Context) ([]database.DocTemplate, error) {
	items := []database.DocTemplate{}
	if err := s.db.WithContext(ctx).Where("status = ?", 1).Order("doc_type").Order("id").Find(&items).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*database.DocTemplate, error) {
	var t database.DocTemplate
	err := s.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("template not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &t, nil
}

func (s *Service) saveFile(ctx context.Context, filename string, data []byte) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".docx") {
		return "", apperror.BadRequest("template file must be a .docx document")
	}
	if len(data) == 0 {
		return "", apperror.BadRequest("template file is empty")
	}
	loc, err := s.store.Save(ctx, storage.FlatKey("templates", ".docx"), data)
	if err != nil {
		return "", apperror.Internal(err)
	}
	return loc, nil
}

type CreateInput struct {
	Name        string
	DocType     string
	Description string
	Filename    string
	Data        []byte
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*database.DocTemplate, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.DocType = strings.TrimSpace(in.DocType)
	if in.Name == "" || in.DocType == "" {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "name and docType are required")
	}

	loc, err := s.saveFile(ctx, in.Filename, in.Data)
	if err != nil {
		return nil, err
	}

	t := &database.DocTemplate{
		Name:        in.Name,
		DocType:     in.DocType,
		Description: in.Description,
		FilePath:    loc,
		Version:     1,
		Status:      1,
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		s.removeFile(ctx, loc)
		return nil, apperror.Internal(err)
	}
	s.logger.Info("Template created", "template_id", t.ID, "doc_type", t.DocType)
	return t, nil
}

// ReplaceFile stores a new .docx for the template and bumps its version.
func (s *Service) ReplaceFile(ctx context.Context, id uint, filename string, data []byte) (*database.DocTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	loc, err := s.saveFile(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	old := t.FilePath
	t.FilePath = loc
	t.Version++
	if err := s.db.WithContext(ctx).Save(t).Error; err != nil {
		s.removeFile(ctx, loc)
		return nil, apperror.Internal(err)
	}
	if old != "" {
		s.removeFile(ctx, old)
	}
	return t, nil
}

type UpdateInput struct {
	Name        *string `json:"name"`
	DocType     *string `json:"doc_type"`
	Description *string `json:"description"`
	Status      *int    `json:"status"`
}

// Update changes the metadata fields that are set.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*database.DocTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, apperror.InvalidParameter("name must not be empty")
		}
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.DocType != nil {
		if strings.TrimSpace(*in.DocType) == "" {
			return nil, apperror.InvalidParameter("docType must not be empty")
		}
		updates["doc_type"] = strings.TrimSpace(*in.DocType)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Status != nil {
		if *in.Status != 0 && *in.Status != 1 {
			return nil, apperror.InvalidParameter("status must be 0 or 1")
		}
		updates["status"] = *in.Status
	}
	if len(updates) == 0 {
		return t, nil
	}

	if err := s.db.WithContext(ctx).Model(t).Updates(updates).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(t).Error; err != nil {
		return apperror.Internal(err)
	}
	if t.FilePath != "" {
		s.removeFile(ctx, t.FilePath)
	}
	s.logger.Info("Template deleted", "template_id", id)
	return nil
}

func (s *Service) removeFile(ctx context.Context, loc string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), loc); err != nil {
		s.logger.Warn("Failed to remove template file", "location", loc, "error", err)
	}
}
