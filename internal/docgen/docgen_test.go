package docgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/internal/render"
	"github.com/JustJay7/case-archive/internal/storage"
	"github.com/JustJay7/case-archive/internal/templates"
	"github.com/JustJay7/case-archive/pkg/logger"
)

type fakeStreamer struct {
	deltas []string
	err    error
	last   llm.Request
}

func (f *fakeStreamer) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) error {
	f.last = req
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.err
}

type fakeRenderer struct {
	calls int
}

func (f *fakeRenderer) PDF(ctx context.Context, html string) ([]byte, error) {
	f.calls++
	return []byte("%PDF-1.4 " + html[:15]), nil
}

func (f *fakeRenderer) Close() error { return nil }

type fixture struct {
	svc   *Service
	db    *gorm.DB
	tpl   *templates.Service
	model *fakeStreamer
}

func setup(t *testing.T, renderer render.PDFRenderer) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	log := logger.NewNop()
	tpl := templates.NewService(db, store, log)
	model := &fakeStreamer{}
	return &fixture{
		svc:   NewService(db, store, tpl, model, renderer, log),
		db:    db,
		tpl:   tpl,
		model: model,
	}
}

func collect(events *[]Event) EmitFunc {
	return func(e Event) error {
		*events = append(*events, e)
		return nil
	}
}

func TestUserPromptFamilies(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		want    []string
		notWant []string
	}{
		{
			name: "case document",
			in: Input{
				DocType:      "立案报告",
				CaseInfo:     &CaseInfo{PersonName: "张三", Department: "某部", Gender: "男"},
				RelatedCases: []CaseRef{{CaseNo: "CF1", Title: "旧案"}},
			},
			want:    []string{"涉案人员姓名：张三", "案发时间：未提供", "性别：男", "CF1：旧案", "不得编造"},
			notWant: []string{"职务/职级"},
		},
		{
			name:    "case document without info",
			in:      Input{DocType: "调查报告"},
			want:    []string{"（未提供案件信息）"},
			notWant: []string{"参考/关联案件"},
		},
		{
			name: "official",
			in: Input{
				DocType:      "请示",
				FormData:     FormData{Recipient: "保卫处", Subject: "经费"},
				SelectedCase: &CaseRef{CaseNo: "CF9"},
			},
			want:    []string{"主送机关/收文对象：保卫处", "主题：经费", "关联案件：CF9"},
			notWant: []string{"内容："},
		},
		{
			name: "report",
			in: Input{
				DocType:  "工作总结",
				FormData: FormData{Title: "年度总结", Plans: "继续加强"},
				Statistics: &Statistics{
					TotalCases: 10, CompletedCases: 8, PendingCases: 2, CompletionRate: 80,
					CaseTypeDistribution: []TypeShare{{Name: "违纪", Count: 4, Percentage: 40.5}},
				},
			},
			want: []string{"报告标题：年度总结", "案件总数：10件", "办结率：80%", "违纪：4件，占比40.5%", "下步计划：继续加强"},
		},
		{
			name: "meeting",
			in:   Input{DocType: "会议纪要", MeetingText: "讨论了安全工作", MeetingTitle: "例会"},
			want: []string{"会议原始内容：\n讨论了安全工作", "会议主题：例会", "待办与分工"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserPrompt(tt.in)
			if !strings.HasPrefix(got, "请生成一份"+tt.in.DocType) {
				t.Errorf("prompt does not start with doc type: %q", got[:40])
			}
			if !strings.Contains(got, "确保格式规范") {
				t.Error("markdown requirements missing")
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("prompt missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("prompt unexpectedly contains %q", w)
				}
			}
		})
	}
}

func TestSystemPromptHint(t *testing.T) {
	got := SystemPrompt("通知", "按本单位格式")
	if !strings.Contains(got, "生成规范的通知文档") || !strings.Contains(got, "模板说明：按本单位格式") {
		t.Errorf("system prompt = %q", got)
	}
	if strings.Contains(SystemPrompt("通知", ""), "模板说明") {
		t.Error("empty hint should be omitted")
	}
}

func TestPrepare(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Prepare(ctx, Input{}); !apperror.Is(err, apperror.CodeMissingParameter) {
		t.Errorf("missing doc type error = %v", err)
	}
	if _, err := f.svc.Prepare(ctx, Input{DocType: "会议纪要", MeetingText: "  "}); apperror.FromError(err).Status != http.StatusBadRequest {
		t.Errorf("meeting without text error = %v", err)
	}

	job, err := f.svc.Prepare(ctx, Input{DocType: "会议纪要", MeetingText: "记录"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !strings.Contains(job.System, defaultMeetingHint) {
		t.Error("meeting hint not used")
	}

	tpl, err := f.tpl.Create(ctx, templates.CreateInput{Name: "通知", DocType: "通知", Description: "按本单位通知格式", Filename: "a.docx", Data: []byte("PK")})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	job, err = f.svc.Prepare(ctx, Input{DocType: "通知", TemplateID: fmt.Sprint(tpl.ID)})
	if err != nil {
		t.Fatalf("Prepare with template: %v", err)
	}
	if !strings.Contains(job.System, "模板说明：按本单位通知格式") {
		t.Errorf("template hint not used: %q", job.System)
	}

	if _, err := f.svc.Prepare(ctx, Input{DocType: "通知", TemplateID: "999"}); !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("unknown template error = %v", err)
	}
}

func TestGenerateCompletes(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.model.deltas = []string{"# 通知\n\n", "请各单位", "按时参加。"}

	job, err := f.svc.Prepare(ctx, Input{DocType: "通知", FormData: FormData{Subject: "会议"}})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	uid := uint(7)
	var events []Event
	if err := f.svc.Generate(ctx, job, &uid, collect(&events)); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("events = %+v", events)
	}
	last := events[3]
	if !last.Done || last.TaskID == "" {
		t.Fatalf("last event = %+v", last)
	}
	if f.model.last.Temperature != 0.7 || f.model.last.MaxTokens != 4000 {
		t.Errorf("request = %+v", f.model.last)
	}

	view, err := f.svc.Status(ctx, last.TaskID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Status != database.DocCompleted || view.Progress != 100 || !view.HasFile {
		t.Errorf("view = %+v", view)
	}

	var task database.DocGenerateTask
	f.db.Where("task_id = ?", last.TaskID).First(&task)
	data, err := os.ReadFile(task.FilePath)
	if err != nil {
		t.Fatalf("read stored markdown: %v", err)
	}
	if string(data) != "# 通知\n\n请各单位按时参加。" {
		t.Errorf("stored = %q", data)
	}
	if !strings.HasSuffix(task.FilePath, last.TaskID+".md") {
		t.Errorf("file path = %q", task.FilePath)
	}
	if task.CreatedBy == nil || *task.CreatedBy != 7 {
		t.Errorf("created by = %v", task.CreatedBy)
	}
}

func TestGenerateModelError(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.model.deltas = []string{"部分"}
	f.model.err = fmt.Errorf("%w: status 500", llm.ErrUpstream)

	job, _ := f.svc.Prepare(ctx, Input{DocType: "函"})
	var events []Event
	err := f.svc.Generate(ctx, job, nil, collect(&events))
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("error = %v", err)
	}
	if len(events) != 2 || events[1].Error == "" {
		t.Fatalf("events = %+v", events)
	}

	views, total, err := f.svc.Tasks(ctx, database.NewPage(1, 20))
	if err != nil || total != 1 {
		t.Fatalf("Tasks: %v total=%d", err, total)
	}
	if views[0].Status != database.DocFailed || views[0].ErrorMessage == "" || views[0].HasFile {
		t.Errorf("view = %+v", views[0])
	}
}

func TestGenerateClientGone(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.model.deltas = []string{"a", "b", "c"}

	job, _ := f.svc.Prepare(ctx, Input{DocType: "函"})
	sent := 0
	err := f.svc.Generate(ctx, job, nil, func(e Event) error {
		sent++
		if sent > 1 {
			return errors.New("broken pipe")
		}
		return nil
	})
	if !errors.Is(err, ErrClientDisconnect) {
		t.Fatalf("error = %v", err)
	}

	var task database.DocGenerateTask
	f.db.First(&task)
	if task.Status != database.DocFailed || task.ErrorMessage != ErrClientDisconnect.Error() {
		t.Errorf("task = %+v", task)
	}
}

func TestStatusNotFound(t *testing.T) {
	f := setup(t, nil)
	if _, err := f.svc.Status(context.Background(), "DOCnope"); !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("error = %v", err)
	}
}

func TestExport(t *testing.T) {
	renderer := &fakeRenderer{}
	f := setup(t, renderer)
	ctx := context.Background()
	f.model.deltas = []string{"# 标题\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"}

	job, _ := f.svc.Prepare(ctx, Input{DocType: "汇报"})
	var events []Event
	if err := f.svc.Generate(ctx, job, nil, collect(&events)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	taskID := events[len(events)-1].TaskID

	page, err := f.svc.Export(ctx, taskID, FormatHTML)
	if err != nil {
		t.Fatalf("Export html: %v", err)
	}
	body := string(page.Data)
	if !strings.Contains(body, "<h1>标题</h1>") || !strings.Contains(body, "<table>") {
		t.Errorf("html = %s", body)
	}
	if page.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", page.ContentType)
	}

	pdf, err := f.svc.Export(ctx, taskID, "")
	if err != nil {
		t.Fatalf("Export pdf: %v", err)
	}
	if pdf.ContentType != "application/pdf" || !strings.HasSuffix(pdf.Filename, ".pdf") || renderer.calls != 1 {
		t.Errorf("pdf export = %q %q calls=%d", pdf.ContentType, pdf.Filename, renderer.calls)
	}

	md, err := f.svc.Export(ctx, taskID, FormatMarkdown)
	if err != nil {
		t.Fatalf("Export md: %v", err)
	}
	if !strings.HasPrefix(string(md.Data), "# 标题") {
		t.Errorf("markdown = %q", md.Data)
	}

	if _, err := f.svc.Export(ctx, taskID, "doc"); !apperror.Is(err, apperror.CodeInvalidParameter) {
		t.Errorf("bad format error = %v", err)
	}
}

func TestExportFallsBackToHTML(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.model.deltas = []string{"正文"}

	job, _ := f.svc.Prepare(ctx, Input{DocType: "汇报"})
	var events []Event
	if err := f.svc.Generate(ctx, job, nil, collect(&events)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := f.svc.Export(ctx, events[len(events)-1].TaskID, FormatPDF)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", got.ContentType)
	}
}

func TestExportRequiresCompletedTask(t *testing.T) {
	f := setup(t, nil)
	task := database.DocGenerateTask{TaskID: "DOC1", DocType: "函", Status: database.DocGenerating}
	f.db.Create(&task)
	if _, err := f.svc.Export(context.Background(), "DOC1", FormatHTML); !apperror.Is(err, apperror.CodeInvalidState) {
		t.Errorf("error = %v", err)
	}
}

func TestTemplatesFilter(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	for _, dt := range []string{"通知", "请示"} {
		if _, err := f.tpl.Create(ctx, templates.CreateInput{Name: dt + "模板", DocType: dt, Filename: "t.docx", Data: []byte("PK")}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, err := f.svc.Templates(ctx, "通知")
	if err != nil {
		t.Fatalf("Templates: %v", err)
	}
	if len(items) != 1 || items[0].DocType != "通知" {
		t.Errorf("items = %+v", items)
	}
}

func TestGenerateWithStreamingClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"第一段", "第二段"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	log := logger.NewNop()
	client := llm.NewClient(llm.Config{APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second}, log)
	svc := NewService(db, store, templates.NewService(db, store, log), client, nil, log)

	job, err := svc.Prepare(context.Background(), Input{DocType: "函"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	var events []Event
	if err := svc.Generate(context.Background(), job, nil, collect(&events)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(events) != 3 || events[0].Content != "第一段" || !events[2].Done {
		t.Errorf("events = %+v", events)
	}
}
