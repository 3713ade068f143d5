// Package ocr tracks recognition tasks for imported images. Recognition
// itself happens outside this service; tasks only move through their states
// and accept corrected text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

const (
	stepPreprocess = "preprocess"
	stepDone       = "已完成"
	stepRunning    = "处理中..."
)

type Service struct {
	db     *gorm.DB
	logger *logger.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, logger: log, now: time.Now}
}

// List returns tasks newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, page database.Page) ([]database.OcrTask, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.OcrTask{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	tasks := []database.OcrTask{}
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&tasks).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return tasks, total, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*database.OcrTask, error) {
	var task database.OcrTask
	err := s.db.WithContext(ctx).First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("ocr task not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &task, nil
}

func (s *Service) markStarted(task *database.OcrTask) {
	now := s.now()
	steps := datatypes.JSONMap{}
	for k, v := range task.StepsInfo {
		steps[k] = v
	}
	steps["upload"] = stepDone
	steps[stepPreprocess] = stepRunning

	task.Status = database.OcrProcessing
	task.CurrentStep = stepPreprocess
	task.Progress = 10
	task.StartTime = &now
	task.StepsInfo = steps
}

// Start moves a pending task to processing.
func (s *Service) Start(ctx context.Context, id uint) (*database.OcrTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != database.OcrPending {
		return nil, apperror.New(apperror.CodeInvalidState, http.StatusBadRequest,
			fmt.Sprintf("task is %s and cannot be started", task.Status))
	}

	s.markStarted(task)
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	s.logger.Info("OCR task started", "task_id", id)
	return task, nil
}

// BatchStart starts every pending task among ids and returns how many were
// started. Tasks in other states are skipped.
func (s *Service) BatchStart(ctx context.Context, ids []uint) (int, error) {
	if len(ids) == 0 {
		return 0, apperror.BadRequest("task ids are required")
	}

	started := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tasks []database.OcrTask
		if err := tx.Where("id IN ? AND status = ?", ids, database.OcrPending).Find(&tasks).Error; err != nil {
			return err
		}
		for i := range tasks {
			s.markStarted(&tasks[i])
			if err := tx.Save(&tasks[i]).Error; err != nil {
				return err
			}
			started++
		}
		return nil
	})
	if err != nil {
		return 0, apperror.Internal(err)
	}
	s.logger.Info("OCR tasks started", "count", started)
	return started, nil
}

// Retry resets a failed task to pending.
func (s *Service) Retry(ctx context.Context, id uint) (*database.OcrTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != database.OcrFailed {
		return nil, apperror.New(apperror.CodeInvalidState, http.StatusBadRequest, "only failed tasks can be retried")
	}

	task.Status = database.OcrPending
	task.Progress = 0
	task.CurrentStep = ""
	task.ErrorMessage = ""
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	s.logger.Info("OCR task reset", "task_id", id)
	return task, nil
}

// Correct stores reviewed text on the task and on its case file.
func (s *Service) Correct(ctx context.Context, id uint, text string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task database.OcrTask
		err := tx.First(&task, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("ocr task not found")
		}
		if err != nil {
			return apperror.Internal(err)
		}

		if err := tx.Model(&task).Update("ocr_text", text).Error; err != nil {
			return apperror.Internal(err)
		}
		if task.CaseFileID != nil {
			if err := tx.Model(&database.CaseFile{}).Where("id = ?", *task.CaseFileID).Update("ocr_text", text).Error; err != nil {
				return apperror.Internal(err)
			}
		}
		return nil
	})
}
