package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewService(db, logger.NewNop())
}

func TestActionLabel(t *testing.T) {
	tests := map[string]string{
		"login":  "登录",
		"export": "导出",
		"custom": "custom",
		"":       "—",
	}
	for action, want := range tests {
		if got := ActionLabel(action); got != want {
			t.Errorf("ActionLabel(%q) = %q, want %q", action, got, want)
		}
	}
}

func TestRecordTruncates(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	err := s.Record(ctx, Entry{
		Username:     "alice",
		Action:       ActionLogin,
		ErrorMessage: strings.Repeat("错", 1500),
		Details:      map[string]any{"k": "v"},
		Meta:         Meta{UserAgent: strings.Repeat("a", 800)},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var row database.AuditLog
	if err := s.db.First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(row.UserAgent) != 500 {
		t.Errorf("user agent length = %d, want 500", len(row.UserAgent))
	}
	if n := len([]rune(row.ErrorMessage)); n != 1000 {
		t.Errorf("error message runes = %d, want 1000", n)
	}
	if row.Status != StatusSuccess {
		t.Errorf("status = %q, want default success", row.Status)
	}
	if row.Details != `{"k":"v"}` {
		t.Errorf("details = %q", row.Details)
	}
}

func TestListFilters(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	entries := []Entry{
		{Username: "alice", Action: ActionLogin, Status: StatusSuccess},
		{Username: "alice", Action: ActionLogin, Status: StatusFailure},
		{Username: "bob", Action: ActionDelete, Status: StatusSuccess},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	items, total, err := s.List(ctx, Filter{}, database.NewPage(1, 0))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total = %d items = %d, want 3", total, len(items))
	}
	if items[0].Username != "bob" {
		t.Errorf("first item = %q, want newest first", items[0].Username)
	}
	if items[0].ActionLabel != "删除" {
		t.Errorf("actionLabel = %q", items[0].ActionLabel)
	}

	_, total, _ = s.List(ctx, Filter{Action: ActionLogin, Status: StatusFailure}, database.NewPage(1, 20))
	if total != 1 {
		t.Errorf("action+status total = %d, want 1", total)
	}

	_, total, _ = s.List(ctx, Filter{Username: "li"}, database.NewPage(1, 20))
	if total != 2 {
		t.Errorf("username like total = %d, want 2", total)
	}

	_, total, _ = s.List(ctx, Filter{StartDate: "not-a-date"}, database.NewPage(1, 20))
	if total != 3 {
		t.Errorf("bad start date should be ignored, total = %d", total)
	}

	today := time.Now().Format("2006-01-02")
	_, total, _ = s.List(ctx, Filter{StartDate: today, EndDate: today}, database.NewPage(1, 20))
	if total != 3 {
		t.Errorf("today range total = %d, want 3", total)
	}

	_, total, _ = s.List(ctx, Filter{EndDate: "2000-01-01"}, database.NewPage(1, 20))
	if total != 0 {
		t.Errorf("past end date total = %d, want 0", total)
	}

	items, total, _ = s.List(ctx, Filter{}, database.NewPage(2, 2))
	if total != 3 || len(items) != 1 {
		t.Errorf("page 2 size 2: total=%d items=%d", total, len(items))
	}
}
