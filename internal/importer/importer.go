// Package importer turns uploaded batches into pending case files.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
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

// Stages reported while a file is processed.
const (
	StageUpload   = "upload"
	StageParse    = "parse"
	StageAnalyze  = "analyze"
	StageComplete = "complete"
	StageFailed   = "failed"
)

var stageProgress = map[string]int{
	StageUpload:   10,
	StageParse:    40,
	StageAnalyze:  70,
	StageComplete: 100,
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

var (
	ErrEmptyFilename    = errors.New("empty filename")
	ErrExtension        = errors.New("file type not allowed")
	ErrEmptyFile        = errors.New("file is empty")
	ErrFileTooLarge     = errors.New("file exceeds the size limit")
	ErrClientDisconnect = errors.New("client disconnected")
)

// Upload is one received file. Open is called at most once.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Progress is one per-file stream event.
type Progress struct {
	Stage     string `json:"stage"`
	FileIndex int    `json:"fileIndex"`
	FileName  string `json:"fileName"`
	Progress  int    `json:"progress,omitempty"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// Summary is the outcome of a finished batch.
type Summary struct {
	Event        string `json:"event,omitempty"`
	TaskID       uint   `json:"taskId"`
	TaskName     string `json:"taskName"`
	Status       string `json:"status"`
	TotalFiles   int    `json:"totalFiles"`
	SuccessFiles int    `json:"successFiles"`
	FailedFiles  int    `json:"failedFiles"`
	CaseFileIDs  []uint `json:"caseFileIds"`
}

// EmitFunc receives progress events. A returned error is treated as the
// client going away.
type EmitFunc func(Progress) error

type Config struct {
	AllowedExtensions []string
	MaxUploadSize     int64
	MaxFiles          int
}

type Importer struct {
	db        *gorm.DB
	store     storage.FileStore
	extractor extractor.TextExtractor
	fields    llm.FieldExtractor
	cfg       Config
	allowed   map[string]bool
	logger    *logger.Logger
	now       func() time.Time
}

func New(db *gorm.DB, store storage.FileStore, ext extractor.TextExtractor, fields llm.FieldExtractor, cfg Config, log *logger.Logger) *Importer {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, e := range cfg.AllowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}
	return &Importer{
		db:        db,
		store:     store,
		extractor: ext,
		fields:    fields,
		cfg:       cfg,
		allowed:   allowed,
		logger:    log,
		now:       time.Now,
	}
}

// Import processes the batch without progress reporting.
func (im *Importer) Import(ctx context.Context, taskName string, createdBy *uint, uploads []Upload) (*Summary, error) {
	return im.Run(ctx, taskName, createdBy, uploads, nil)
}

// Run processes uploads strictly in order. Every created case file is
// committed before its complete event is emitted. When ctx is cancelled or
// emit fails the remaining files are counted as failed and the task is
// still finalized.
func (im *Importer) Run(ctx context.Context, taskName string, createdBy *uint, uploads []Upload, emit EmitFunc) (*Summary, error) {
	if len(uploads) == 0 {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "no files uploaded")
	}
	if im.cfg.MaxFiles > 0 && len(uploads) > im.cfg.MaxFiles {
		return nil, apperror.BadRequest(fmt.Sprintf("at most %d files per import", im.cfg.MaxFiles))
	}

	if strings.TrimSpace(taskName) == "" {
		taskName = "导入任务-" + im.now().Format("20060102150405")
	}
	task := &database.ImportTask{
		TaskName:   taskName,
		TotalFiles: len(uploads),
		Status:     database.TaskRunning,
		CreatedBy:  createdBy,
	}
	if err := im.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, apperror.Internal(fmt.Errorf("create import task: %w", err))
	}

	im.logger.Info("Import started", "task_id", task.ID, "task_name", taskName, "files", len(uploads))

	summary := &Summary{
		TaskID:      task.ID,
		TaskName:    taskName,
		TotalFiles:  len(uploads),
		CaseFileIDs: []uint{},
	}

	b := &batch{im: im, task: task, total: len(uploads), emit: emit}
	var stopErr error
	skipped := 0
	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			stopErr = ErrClientDisconnect
		}
		if stopErr == nil && b.emitErr != nil {
			stopErr = ErrClientDisconnect
		}
		if stopErr != nil {
			skipped = len(uploads) - i
			summary.FailedFiles += skipped
			break
		}

		id, err := b.processFile(ctx, i, up)
		if err != nil {
			summary.FailedFiles++
			im.logger.Warn("Import file failed", "task_id", task.ID, "file", up.Filename, "error", err)
			b.send(Progress{Stage: StageFailed, FileIndex: i, FileName: up.Filename, Message: err.Error()})
			continue
		}
		summary.SuccessFiles++
		summary.CaseFileIDs = append(summary.CaseFileIDs, id)
	}

	task.SuccessFiles = summary.SuccessFiles
	task.FailedFiles = summary.FailedFiles
	task.Status = database.TaskCompleted
	if stopErr != nil {
		task.ErrorMessage = fmt.Sprintf("%v: %d files not processed", stopErr, skipped)
	}

	// The request context may already be cancelled; the task must still be
	// finalized.
	finalCtx := context.WithoutCancel(ctx)
	if err := im.db.WithContext(finalCtx).Model(task).Updates(map[string]interface{}{
		"success_files": task.SuccessFiles,
		"failed_files":  task.FailedFiles,
		"status":        task.Status,
		"error_message": task.ErrorMessage,
	}).Error; err != nil {
		im.logger.Error("Failed to finalize import task", "task_id", task.ID, "error", err)
		return nil, apperror.Internal(fmt.Errorf("finalize import task: %w", err))
	}

	summary.Status = task.Status
	im.logger.Info("Import finished",
		"task_id", task.ID,
		"total", summary.TotalFiles,
		"success", summary.SuccessFiles,
		"failed", summary.FailedFiles,
	)
	return summary, nil
}

type batch struct {
	im      *Importer
	task    *database.ImportTask
	total   int
	emit    EmitFunc
	emitErr error
}

func (b *batch) send(p Progress) {
	if b.emit == nil || b.emitErr != nil {
		return
	}
	p.Total = b.total
	if p.Progress == 0 {
		p.Progress = stageProgress[p.Stage]
	}
	if err := b.emit(p); err != nil {
		b.emitErr = err
	}
}

func (b *batch) stage(stage string, idx int, name string) {
	b.send(Progress{Stage: stage, FileIndex: idx, FileName: name})
}

// check applies the preconditions in order: filename, extension, size.
func (im *Importer) check(up Upload) (string, error) {
	if strings.TrimSpace(up.Filename) == "" {
		return "", ErrEmptyFilename
	}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if !im.allowed[ext] {
		return "", fmt.Errorf("%w: %s", ErrExtension, ext)
	}
	if up.Size == 0 {
		return "", ErrEmptyFile
	}
	if im.cfg.MaxUploadSize > 0 && up.Size > im.cfg.MaxUploadSize {
		return "", ErrFileTooLarge
	}
	return ext, nil
}

func (im *Importer) read(up Upload) ([]byte, error) {
	rc, err := up.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	limit := im.cfg.MaxUploadSize
	if limit <= 0 {
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func (b *batch) processFile(ctx context.Context, idx int, up Upload) (uint, error) {
	im := b.im
	ext, err := im.check(up)
	if err != nil {
		return 0, err
	}

	data, err := im.read(up)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, ErrEmptyFile
	}

	now := im.now()
	location, err := im.store.Save(ctx, storage.NewKey("case-files", ext, now), data)
	if err != nil {
		return 0, fmt.Errorf("save file: %w", err)
	}
	b.stage(StageUpload, idx, up.Filename)

	text := im.extractor.Extract(data, up.Filename)
	b.stage(StageParse, idx, up.Filename)

	extraction := map[string]interface{}{"status": "skipped"}
	var fields llm.CaseFields
	if strings.TrimSpace(text) != "" {
		fields, err = im.fields.ExtractFields(ctx, text)
		if err != nil {
			im.logger.Warn("Field extraction failed", "file", up.Filename, "error", err)
			extraction = map[string]interface{}{"status": "failed", "error": err.Error()}
			fields = llm.CaseFields{}
		} else {
			extraction = map[string]interface{}{"status": "ok"}
		}
	}
	b.stage(StageAnalyze, idx, up.Filename)

	cf := &database.CaseFile{
		CaseNo:    casefile.NewCaseNo(now),
		FilePath:  location,
		FileSize:  int64(len(data)),
		FileType:  strings.TrimPrefix(ext, "."),
		OcrText:   text,
		Status:    database.StatusPending,
		CreatedBy: b.task.CreatedBy,
		MetaData: datatypes.JSONMap{
			"importTaskId":     b.task.ID,
			"batchName":        b.task.TaskName,
			"originalFilename": up.Filename,
			"extraction":       extraction,
		},
	}
	casefile.ApplyFields(cf, fields)
	if cf.CaseName == "" {
		cf.CaseName = strings.TrimSuffix(up.Filename, filepath.Ext(up.Filename))
	}

	err = im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cf).Error; err != nil {
			return err
		}
		if !imageExtensions[ext] {
			return nil
		}
		return tx.Create(&database.OcrTask{
			CaseFileID: &cf.ID,
			FileName:   up.Filename,
			FilePath:   location,
			FileSize:   cf.FileSize,
			FileType:   cf.FileType,
			Status:     database.OcrPending,
			StepsInfo:  datatypes.JSONMap{"upload": "done"},
		}).Error
	})
	if err != nil {
		if delErr := im.store.Delete(context.WithoutCancel(ctx), location); delErr != nil {
			im.logger.Warn("Failed to remove orphaned upload", "location", location, "error", delErr)
		}
		return 0, fmt.Errorf("save case file: %w", err)
	}

	b.stage(StageComplete, idx, up.Filename)
	return cf.ID, nil
}
