package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/audit"
)

func (h *Handlers) ListOcrTasks(c *gin.Context) {
	page := pageFrom(c)
	tasks, total, err := h.ocr.List(c.Request.Context(), c.Query("status"), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, tasks, total, page, nil)
}

func (h *Handlers) GetOcrTask(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	task, err := h.ocr.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, task)
}

func (h *Handlers) StartOcrTask(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	task, err := h.ocr.Start(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "task started", task)
}

func (h *Handlers) BatchStartOcrTasks(c *gin.Context) {
	var req struct {
		TaskIDs []uint `json:"taskIds"`
	}
	if !h.bindJSON(c, &req) {
		return
	}
	n, err := h.ocr.BatchStart(c.Request.Context(), req.TaskIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"started": n})
}

func (h *Handlers) RetryOcrTask(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	task, err := h.ocr.Retry(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "task reset", task)
}

func (h *Handlers) CorrectOcrText(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var req struct {
		OcrText string `json:"ocrText"`
	}
	if !h.bindJSON(c, &req) {
		return
	}
	err := h.ocr.Correct(c.Request.Context(), id, req.OcrText)
	h.record(c, audit.ActionUpdate, "ocr_task", idRef(id), fmt.Sprintf("correct text of ocr task %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "text corrected", nil)
}
