// Package audit records security relevant actions and lists them for
// administrators.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

// Actions
const (
	ActionLogin  = "login"
	ActionLogout = "logout"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionQuery  = "query"
	ActionExport = "export"
	ActionDenied = "access_denied"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var actionLabels = map[string]string{
	ActionLogin:  "登录",
	ActionLogout: "登出",
	ActionCreate: "新增",
	ActionUpdate: "修改",
	ActionDelete: "删除",
	ActionQuery:  "查询",
	ActionExport: "导出",
	ActionDenied: "拒绝访问",
}

// ActionLabel returns the display label of an action.
func ActionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	if action == "" {
		return "—"
	}
	return action
}

// Meta is the request information attached to an entry.
type Meta struct {
	RequestID string
	Method    string
	Path      string
	ClientIP  string
	UserAgent string
}

// Entry is one action to record.
type Entry struct {
	UserID       *uint
	Username     string
	Action       string
	ResourceType string
	ResourceID   *uint
	Description  string
	Details      map[string]any
	Status       string
	StatusCode   int
	ErrorMessage string
	Meta         Meta
}

// Recorder is what other services depend on.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Service struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, logger: log}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Record writes the row and an application log line.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if e.Status == "" {
		e.Status = StatusSuccess
	}

	row := &database.AuditLog{
		UserID:       e.UserID,
		Username:     e.Username,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		RequestID:    e.Meta.RequestID,
		Method:       e.Meta.Method,
		Path:         e.Meta.Path,
		ClientIP:     e.Meta.ClientIP,
		UserAgent:    truncate(e.Meta.UserAgent, 500),
		Description:  e.Description,
		Status:       e.Status,
		StatusCode:   e.StatusCode,
		ErrorMessage: truncate(e.ErrorMessage, 1000),
	}
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			row.Details = string(b)
		}
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logger.Error("Failed to write audit log", "action", e.Action, "error", err)
		return fmt.Errorf("write audit log: %w", err)
	}

	s.logger.Info("Audit",
		"action", e.Action,
		"user_id", e.UserID,
		"username", e.Username,
		"resource_type", e.ResourceType,
		"resource_id", e.ResourceID,
		"status", e.Status,
		"client_ip", e.Meta.ClientIP,
	)
	return nil
}

// Filter narrows the audit list.
type Filter struct {
	StartDate string
	EndDate   string
	Action    string
	Username  string
	Status    string
}

// Item is one row of the audit list.
type Item struct {
	ID           uint      `json:"id"`
	UserID       *uint     `json:"userId"`
	Username     string    `json:"username"`
	Action       string    `json:"action"`
	ActionLabel  string    `json:"actionLabel"`
	ResourceType string    `json:"resourceType"`
	ResourceID   *uint     `json:"resourceId"`
	Description  string    `json:"description"`
	Path         string    `json:"path"`
	Method       string    `json:"method"`
	ClientIP     string    `json:"clientIp"`
	Status       string    `json:"status"`
	StatusCode   int       `json:"statusCode"`
	ErrorMessage string    `json:"errorMessage"`
	CreatedAt    time.Time `json:"createdAt"`
}

// List returns matching rows newest first. Unparseable dates are ignored.
func (s *Service) List(ctx context.Context, f Filter, page database.Page) ([]Item, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.AuditLog{})

	if f.StartDate != "" {
		if start, err := time.ParseInLocation("2006-01-02", f.StartDate, time.Local); err == nil {
			q = q.Where("created_at >= ?", start)
		}
	}
	if f.EndDate != "" {
		if end, err := time.ParseInLocation("2006-01-02 15:04:05", f.EndDate+" 23:59:59", time.Local); err == nil {
			q = q.Where("created_at <= ?", end)
		}
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Username != "" {
		q = q.Where("username LIKE ?", "%"+f.Username+"%")
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []database.AuditLog
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{
			ID:           r.ID,
			UserID:       r.UserID,
			Username:     r.Username,
			Action:       r.Action,
			ActionLabel:  ActionLabel(r.Action),
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			Description:  r.Description,
			Path:         r.Path,
			Method:       r.Method,
			ClientIP:     r.ClientIP,
			Status:       r.Status,
			StatusCode:   r.StatusCode,
			ErrorMessage: r.ErrorMessage,
			CreatedAt:    r.CreatedAt,
		})
	}
	return items, total, nil
}
