// Package docgen streams model generated documents and keeps a record of
// every run.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/internal/render"
	"github.com/JustJay7/case-archive/internal/storage"
	"github.com/JustJay7/case-archive/internal/templates"
	"github.com/JustJay7/case-archive/pkg/logger"
)

// Streamer is the part of llm.Client generation needs.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request, onDelta func(string) error) error
}

// Event is one server-sent event payload.
type Event struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type EmitFunc func(Event) error

// ErrClientDisconnect marks a run stopped because events could not be sent.
var ErrClientDisconnect = errors.New("client disconnected")

type Service struct {
	db        *gorm.DB
	store     storage.FileStore
	templates *templates.Service
	model     Streamer
	renderer  render.PDFRenderer
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, store storage.FileStore, tpl *templates.Service, model Streamer, renderer render.PDFRenderer, log *logger.Logger) *Service {
	if renderer == nil {
		renderer = render.Disabled{}
	}
	return &Service{
		db:        db,
		store:     store,
		templates: tpl,
		model:     model,
		renderer:  renderer,
		logger:    log,
		now:       time.Now,
	}
}

// Job is a validated generation request with its prompts built.
type Job struct {
	DocType    string
	TemplateID string
	System     string
	User       string
}

// Prepare validates in and builds the prompts. Errors are returned before
// any event is streamed.
func (s *Service) Prepare(ctx context.Context, in Input) (*Job, error) {
	in.DocType = strings.TrimSpace(in.DocType)
	if in.DocType == "" {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "doc_type is required")
	}
	if in.DocType == MeetingDocType && strings.TrimSpace(in.MeetingText) == "" {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest,
			"请提供会议随记或会议转写内容后再生成纪要")
	}

	hint, err := s.hint(ctx, in)
	if err != nil {
		return nil, err
	}

	return &Job{
		DocType:    in.DocType,
		TemplateID: in.TemplateID,
		System:     SystemPrompt(in.DocType, hint),
		User:       UserPrompt(in),
	}, nil
}

func (s *Service) hint(ctx context.Context, in Input) (string, error) {
	fallback := defaultHint
	if in.DocType == MeetingDocType {
		fallback = defaultMeetingHint
	}
	if in.TemplateID == "" || s.templates == nil {
		return fallback, nil
	}

	var id uint
	if _, err := fmt.Sscan(in.TemplateID, &id); err != nil {
		return "", apperror.InvalidParameter("template_id must be numeric")
	}
	tpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(tpl.Description) == "" {
		return fallback, nil
	}
	return tpl.Description, nil
}

func (s *Service) newTaskID() string {
	return "DOC" + s.now().Format("20060102150405") + strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}

// Generate records a task, streams the model output through emit and stores
// the finished markdown. It always ends the stream with a done or an error
// event unless the client is gone.
func (s *Service) Generate(ctx context.Context, job *Job, userID *uint, emit EmitFunc) error {
	task := &database.DocGenerateTask{
		TaskID:     s.newTaskID(),
		TemplateID: job.TemplateID,
		DocType:    job.DocType,
		Status:     database.DocGenerating,
		CreatedBy:  userID,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		s.logger.Error("Failed to create generation task", "error", err)
		_ = emit(Event{Error: "failed to create generation task"})
		return apperror.Internal(err)
	}

	log := s.logger.With("task_id", task.TaskID, "doc_type", job.DocType)
	log.Info("Document generation started")
	start := time.Now()

	var (
		out     strings.Builder
		emitErr error
	)
	err := s.model.Stream(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: job.System},
			{Role: "user", Content: job.User},
		},
		Temperature: 0.7,
		MaxTokens:   4000,
	}, func(delta string) error {
		out.WriteString(delta)
		if err := emit(Event{Content: delta}); err != nil {
			emitErr = err
			return err
		}
		return nil
	})

	finishCtx := context.WithoutCancel(ctx)
	switch {
	case emitErr != nil || ctx.Err() != nil:
		s.fail(finishCtx, task, ErrClientDisconnect.Error())
		log.Warn("Document generation aborted", "error", err)
		return ErrClientDisconnect
	case err != nil:
		s.fail(finishCtx, task, err.Error())
		log.Error("Document generation failed", "error", err)
		_ = emit(Event{Error: err.Error()})
		return err
	}

	content := llm.StripCodeFence(out.String())
	if content == "" {
		s.fail(finishCtx, task, "language model returned no content")
		_ = emit(Event{Error: "language model returned no content"})
		return fmt.Errorf("%w: empty document", llm.ErrMalformed)
	}

	loc, err := s.store.Save(finishCtx, path.Join("generated", task.TaskID+".md"), []byte(content))
	if err != nil {
		s.fail(finishCtx, task, err.Error())
		log.Error("Failed to store generated document", "error", err)
		_ = emit(Event{Error: "failed to store generated document"})
		return apperror.Internal(err)
	}

	if err := s.db.WithContext(finishCtx).Model(task).Updates(map[string]interface{}{
		"status":    database.DocCompleted,
		"file_path": loc,
	}).Error; err != nil {
		log.Error("Failed to complete generation task", "error", err)
	}

	log.Info("Document generation completed",
		"chars", len([]rune(content)),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err := emit(Event{Done: true, TaskID: task.TaskID}); err != nil {
		return ErrClientDisconnect
	}
	return nil
}

func (s *Service) fail(ctx context.Context, task *database.DocGenerateTask, msg string) {
	err := s.db.WithContext(ctx).Model(task).Updates(map[string]interface{}{
		"status":        database.DocFailed,
		"error_message": msg,
	}).Error
	if err != nil {
		s.logger.Error("Failed to mark generation task failed", "task_id", task.TaskID, "error", err)
	}
}

// TemplateItem is an enabled template offered for generation.
type TemplateItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DocType     string `json:"doc_type"`
	Description string `json:"description"`
}

// Templates lists enabled templates, optionally of one document type.
func (s *Service) Templates(ctx context.Context, docType string) ([]TemplateItem, error) {
	enabled, err := s.templates.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	items := []TemplateItem{}
	for _, t := range enabled {
		if docType != "" && t.DocType != docType {
			continue
		}
		items = append(items, TemplateItem{
			ID:          fmt.Sprint(t.ID),
			Name:        t.Name,
			DocType:     t.DocType,
			Description: t.Description,
		})
	}
	return items, nil
}

// TaskView is the public shape of a generation task.
type TaskView struct {
	TaskID       string    `json:"taskId"`
	DocType      string    `json:"docType"`
	TemplateID   string    `json:"templateId,omitempty"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	HasFile      bool      `json:"hasFile"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toView(t database.DocGenerateTask) TaskView {
	progress := 0
	switch t.Status {
	case database.DocGenerating:
		progress = 50
	case database.DocCompleted:
		progress = 100
	}
	return TaskView{
		TaskID:       t.TaskID,
		DocType:      t.DocType,
		TemplateID:   t.TemplateID,
		Status:       t.Status,
		Progress:     progress,
		HasFile:      t.FilePath != "",
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Tasks lists generation runs newest first.
func (s *Service) Tasks(ctx context.Context, page database.Page) ([]TaskView, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.DocGenerateTask{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	var rows []database.DocGenerateTask
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}
	views := make([]TaskView, 0, len(rows))
	for _, r := range rows {
		views = append(views, toView(r))
	}
	return views, total, nil
}

func (s *Service) task(ctx context.Context, taskID string) (*database.DocGenerateTask, error) {
	var t database.DocGenerateTask
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("generation task not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &t, nil
}

// Status returns one generation task.
func (s *Service) Status(ctx context.Context, taskID string) (*TaskView, error) {
	t, err := s.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	v := toView(*t)
	return &v, nil
}
