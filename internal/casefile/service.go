// Package casefile reads and deletes case files and their import tasks.
package casefile

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/storage"
	"github.com/JustJay7/case-archive/pkg/logger"
)

type Service struct {
	db     *gorm.DB
	store  storage.FileStore
	logger *logger.Logger
}

func NewService(db *gorm.DB, store storage.FileStore, log *logger.Logger) *Service {
	return &Service{db: db, store: store, logger: log}
}

// ListItem is one row of the case file list.
type ListItem struct {
	ID                   uint       `json:"id"`
	CaseNo               string     `json:"caseNo"`
	CaseName             string     `json:"caseName"`
	Title                string     `json:"title"`
	CaseType             string     `json:"caseType"`
	SourceDepartment     string     `json:"sourceDepartment"`
	IncidentTime         *time.Time `json:"incidentTime"`
	PersonName           string     `json:"personName"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	FileSize             int64      `json:"fileSize"`
	FileType             string     `json:"fileType"`
	ClassificationLevel1 string     `json:"classificationLevel1"`
	ClassificationLevel2 string     `json:"classificationLevel2"`
	ClassificationLevel3 string     `json:"classificationLevel3"`
	Tags                 []string   `json:"tags"`
}

func toListItem(cf *database.CaseFile) ListItem {
	return ListItem{
		ID:                   cf.ID,
		CaseNo:               cf.CaseNo,
		CaseName:             cf.CaseName,
		Title:                cf.Title,
		CaseType:             cf.CaseType,
		SourceDepartment:     cf.SourceDepartment,
		IncidentTime:         cf.IncidentTime,
		PersonName:           cf.PersonName,
		Status:               cf.Status,
		CreatedAt:            cf.CreatedAt,
		UpdatedAt:            cf.UpdatedAt,
		FileSize:             cf.FileSize,
		FileType:             cf.FileType,
		ClassificationLevel1: cf.ClassificationLevel1,
		ClassificationLevel2: cf.ClassificationLevel2,
		ClassificationLevel3: cf.ClassificationLevel3,
		Tags:                 cf.TagList(),
	}
}

// Detail is the full view of one case file.
type Detail struct {
	ListItem
	PersonInfo                        database.PersonInfo      `json:"personInfo"`
	Charge                            string                   `json:"charge"`
	SuicideMethod                     string                   `json:"suicideMethod"`
	IncidentProcess                   string                   `json:"incidentProcess"`
	InvestigationProcessAndConclusion string                   `json:"investigationProcessAndConclusion"`
	CauseAndLesson                    string                   `json:"causeAndLesson"`
	CaseFiling                        string                   `json:"caseFiling"`
	Judgment                          string                   `json:"judgment"`
	FilePath                          string                   `json:"filePath"`
	OcrText                           string                   `json:"ocrText"`
	Metadata                          map[string]interface{}   `json:"metadata"`
	Timeline                          []database.TimelineEntry `json:"timeline"`
}

type ListFilter struct {
	Keyword  string
	CaseType string
	Status   string
}

// List returns case files newest first. Keyword matches case number, name,
// title and extracted text.
func (s *Service) List(ctx context.Context, f ListFilter, page database.Page) ([]ListItem, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.CaseFile{})
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		q = q.Where("case_no LIKE ? OR case_name LIKE ? OR title LIKE ? OR ocr_text LIKE ?", like, like, like, like)
	}
	if f.CaseType != "" {
		q = q.Where("case_type = ?", f.CaseType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	var rows []database.CaseFile
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	items := make([]ListItem, 0, len(rows))
	for i := range rows {
		items = append(items, toListItem(&rows[i]))
	}
	return items, total, nil
}

// Get loads one case file or returns a 404 AppError.
func (s *Service) Get(ctx context.Context, id uint) (*database.CaseFile, error) {
	var cf database.CaseFile
	err := s.db.WithContext(ctx).First(&cf, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("case file not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &cf, nil
}

func (s *Service) Detail(ctx context.Context, id uint) (*Detail, error) {
	cf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{
		ListItem:                          toListItem(cf),
		PersonInfo:                        cf.PersonInfo.Data(),
		Charge:                            cf.Charge,
		SuicideMethod:                     cf.SuicideMethod,
		IncidentProcess:                   cf.IncidentProcess,
		InvestigationProcessAndConclusion: cf.InvestigationProcessAndConclusion,
		CauseAndLesson:                    cf.CauseAndLesson,
		CaseFiling:                        cf.CaseFiling,
		Judgment:                          cf.Judgment,
		FilePath:                          cf.FilePath,
		OcrText:                           cf.OcrText,
		Metadata:                          cf.Meta(),
		Timeline:                          cf.TimelineEntries(),
	}, nil
}

// Delete hard deletes the row. The stored original is kept.
func (s *Service) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&database.CaseFile{}, id)
	if res.Error != nil {
		return apperror.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("case file not found")
	}
	s.logger.Info("Case file deleted", "case_file_id", id)
	return nil
}

// ImportTasks returns every import task newest first.
func (s *Service) ImportTasks(ctx context.Context) ([]database.ImportTask, error) {
	var tasks []database.ImportTask
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&tasks).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	return tasks, nil
}

// StoredFile is an opened original upload.
type StoredFile struct {
	io.ReadCloser
	Name        string
	ContentType string
	Size        int64
}

// OpenFile opens the stored original of a case file.
func (s *Service) OpenFile(ctx context.Context, id uint) (*StoredFile, error) {
	cf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cf.FilePath == "" {
		return nil, apperror.NotFound("file not found")
	}

	rc, err := s.store.Open(ctx, cf.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperror.NotFound("file not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}

	name := cf.MetaString("originalFilename")
	if name == "" {
		name = filepath.Base(cf.FilePath)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &StoredFile{ReadCloser: rc, Name: name, ContentType: contentType, Size: cf.FileSize}, nil
}
