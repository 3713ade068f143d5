package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/docgen"
)

type caseDocRequest struct {
	DocType      string           `json:"doc_type"`
	TemplateID   string           `json:"template_id"`
	CaseInfo     *docgen.CaseInfo `json:"case_info"`
	RelatedCases []docgen.CaseRef `json:"related_cases"`
}

type officialDocRequest struct {
	DocType      string          `json:"doc_type"`
	TemplateID   string          `json:"template_id"`
	FormData     docgen.FormData `json:"form_data"`
	SelectedCase *docgen.CaseRef `json:"selected_case"`
}

type reportRequest struct {
	ReportType   string             `json:"report_type"`
	TemplateID   string             `json:"template_id"`
	FormData     docgen.FormData    `json:"form_data"`
	Statistics   *docgen.Statistics `json:"statistics"`
	ReportPeriod string             `json:"report_period"`
}

// meetingRequest takes either typed notes or a recording transcript.
type meetingRequest struct {
	InputType         string `json:"input_type"`
	TemplateID        string `json:"template_id"`
	MeetingNotes      string `json:"meeting_notes"`
	MeetingTranscript string `json:"meeting_transcript"`
	MeetingTitle      string `json:"meeting_title"`
	MeetingTime       string `json:"meeting_time"`
}

func (r meetingRequest) text() string {
	if strings.TrimSpace(r.MeetingNotes) != "" {
		return r.MeetingNotes
	}
	return r.MeetingTranscript
}

func (h *Handlers) GenerateCaseDocument(c *gin.Context) {
	var req caseDocRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.generate(c, docgen.Input{
		DocType:      req.DocType,
		TemplateID:   req.TemplateID,
		CaseInfo:     req.CaseInfo,
		RelatedCases: req.RelatedCases,
	})
}

func (h *Handlers) GenerateOfficialDocument(c *gin.Context) {
	var req officialDocRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.generate(c, docgen.Input{
		DocType:      req.DocType,
		TemplateID:   req.TemplateID,
		FormData:     req.FormData,
		SelectedCase: req.SelectedCase,
	})
}

func (h *Handlers) GenerateReport(c *gin.Context) {
	var req reportRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.generate(c, docgen.Input{
		DocType:      req.ReportType,
		TemplateID:   req.TemplateID,
		FormData:     req.FormData,
		Statistics:   req.Statistics,
		ReportPeriod: req.ReportPeriod,
	})
}

func (h *Handlers) GenerateMeetingMinutes(c *gin.Context) {
	var req meetingRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.generate(c, docgen.Input{
		DocType:      docgen.MeetingDocType,
		TemplateID:   req.TemplateID,
		MeetingText:  req.text(),
		MeetingTitle: req.MeetingTitle,
		MeetingTime:  req.MeetingTime,
	})
}

// generate validates the input as JSON and only then switches to a stream.
func (h *Handlers) generate(c *gin.Context, in docgen.Input) {
	job, err := h.docgen.Prepare(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	startStream(c)
	defer h.recoverStream(c, docgen.Event{Error: "internal server error"})
	err = h.docgen.Generate(c.Request.Context(), job, principal(c).IDPtr(), func(ev docgen.Event) error {
		return send(c, ev)
	})
	if errors.Is(err, docgen.ErrClientDisconnect) {
		h.logger.Info("Generation stream closed by client", "doc_type", job.DocType)
	}
}

func (h *Handlers) GenerationTemplates(c *gin.Context) {
	items, err := h.docgen.Templates(c.Request.Context(), c.Query("doc_type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"templates": items})
}

func (h *Handlers) GenerationTasks(c *gin.Context) {
	page := pageFrom(c)
	items, total, err := h.docgen.Tasks(c.Request.Context(), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) GenerationStatus(c *gin.Context) {
	view, err := h.docgen.Status(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, view)
}

func (h *Handlers) ExportDocument(c *gin.Context) {
	taskID := c.Param("taskId")
	exp, err := h.docgen.Export(c.Request.Context(), taskID, c.Query("format"))
	h.record(c, audit.ActionExport, "doc_generate_task", nil, "export document "+taskID, err)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(exp.Filename))
	c.Data(http.StatusOK, exp.ContentType, exp.Data)
}
