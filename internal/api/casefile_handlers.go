package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/casefile"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/importer"
)

// uploads collects the "files" parts of a multipart import request.
func (h *Handlers) uploads(c *gin.Context) ([]importer.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "no files uploaded")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "no files uploaded")
	}
	if h.cfg.MaxImportFiles > 0 && len(headers) > h.cfg.MaxImportFiles {
		return nil, apperror.BadRequest(fmt.Sprintf("at most %d files per import", h.cfg.MaxImportFiles))
	}

	out := make([]importer.Upload, 0, len(headers))
	for _, fh := range headers {
		out = append(out, importer.Upload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open:     openPart(fh),
		})
	}
	return out, nil
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}

func (h *Handlers) ImportCaseFiles(c *gin.Context) {
	ups, err := h.uploads(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.importer.Import(c.Request.Context(), c.PostForm("task_name"), principal(c).IDPtr(), ups)
	if err != nil {
		h.record(c, audit.ActionCreate, "import_task", nil, "import case files", err)
		h.fail(c, err)
		return
	}
	h.record(c, audit.ActionCreate, "import_task", idRef(summary.TaskID),
		fmt.Sprintf("import %d files, %d succeeded", summary.TotalFiles, summary.SuccessFiles), nil)
	okMessage(c, "import finished", summary)
}

// ImportCaseFilesStream runs the same import and reports every file stage as
// a server-sent event.
func (h *Handlers) ImportCaseFilesStream(c *gin.Context) {
	ups, err := h.uploads(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	taskName := c.PostForm("task_name")

	startStream(c)
	defer h.recoverStream(c, gin.H{"event": "error", "message": "internal server error"})
	emit := func(p importer.Progress) error {
		return send(c, p)
	}
	summary, err := h.importer.Run(c.Request.Context(), taskName, principal(c).IDPtr(), ups, emit)
	if err != nil {
		h.record(c, audit.ActionCreate, "import_task", nil, "import case files", err)
		_ = send(c, gin.H{"event": "error", "message": apperror.FromError(err).Message})
		return
	}
	h.record(c, audit.ActionCreate, "import_task", idRef(summary.TaskID),
		fmt.Sprintf("import %d files, %d succeeded", summary.TotalFiles, summary.SuccessFiles), nil)
	summary.Event = "task_done"
	if err := send(c, summary); err != nil {
		h.logger.Info("Import stream closed before task_done", "task_id", summary.TaskID)
	}
}

func (h *Handlers) ListCaseFiles(c *gin.Context) {
	page := pageFrom(c)
	items, total, err := h.files.List(c.Request.Context(), casefile.ListFilter{
		Keyword:  c.Query("keyword"),
		CaseType: c.Query("case_type"),
		Status:   c.Query("status"),
	}, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) CaseFileDetail(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	detail, err := h.files.Detail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, detail)
}

func (h *Handlers) SearchCaseFiles(c *gin.Context) {
	var req casefile.SearchRequest
	if !h.bindJSON(c, &req) {
		return
	}
	items, total, meta, err := h.files.Search(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, database.NewPage(req.Page, req.PageSize), meta)
}

func (h *Handlers) ImportTasks(c *gin.Context) {
	tasks, err := h.files.ImportTasks(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, tasks)
}

func (h *Handlers) ReExtract(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	cf, err := h.review.ReExtract(c.Request.Context(), id)
	h.record(c, audit.ActionUpdate, "case_file", idRef(id), "re-extract case file fields", err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "fields extracted", gin.H{
		"id":            cf.ID,
		"status":        cf.Status,
		"extractedData": casefile.ExtractedData(cf),
	})
}

// CaseFileContent streams the stored original upload.
func (h *Handlers) CaseFileContent(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	f, err := h.files.OpenFile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	size := f.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, f.ContentType, f, map[string]string{
		"Content-Disposition": "inline; filename*=UTF-8''" + url.PathEscape(f.Name),
	})
}

func (h *Handlers) DeleteCaseFile(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	err := h.review.Delete(c.Request.Context(), id)
	h.record(c, audit.ActionDelete, "case_file", idRef(id), fmt.Sprintf("delete case file %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "case file deleted", nil)
}
