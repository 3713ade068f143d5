package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/casefile"
	"github.com/JustJay7/case-archive/internal/llm"
)

// PendingReview lists files waiting for review. status is pending, failed or
// empty for both.
func (h *Handlers) PendingReview(c *gin.Context) {
	page := pageFrom(c)
	items, total, err := h.review.ListPending(c.Request.Context(), c.Query("status"), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) UnconfirmedClassification(c *gin.Context) {
	page := pageFrom(c)
	items, total, err := h.classification.Unconfirmed(c.Request.Context(), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) ClassificationTree(c *gin.Context) {
	tree, err := h.classification.Tree(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, tree)
}

func (h *Handlers) ConfirmClassification(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var req llm.Classification
	if !h.bindJSON(c, &req) {
		return
	}
	err := h.classification.Confirm(c.Request.Context(), id, req)
	h.record(c, audit.ActionUpdate, "case_file", idRef(id), "confirm classification", err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "classification confirmed", nil)
}

func (h *Handlers) BatchConfirmClassification(c *gin.Context) {
	var req struct {
		CaseFileIDs    []uint             `json:"caseFileIds"`
		Classification llm.Classification `json:"classification"`
	}
	if !h.bindJSON(c, &req) {
		return
	}
	n, err := h.classification.BatchConfirm(c.Request.Context(), req.CaseFileIDs, req.Classification)
	h.record(c, audit.ActionUpdate, "case_file", nil, fmt.Sprintf("batch confirm classification of %d files", len(req.CaseFileIDs)), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"count": n})
}

func (h *Handlers) ClassificationCaseFiles(c *gin.Context) {
	page := pageFrom(c)
	items, total, err := h.classification.CaseFiles(c.Request.Context(), c.Param("classificationId"), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) SaveReview(c *gin.Context) {
	h.applyReview(c, false)
}

func (h *Handlers) ArchiveCaseFile(c *gin.Context) {
	h.applyReview(c, true)
}

func (h *Handlers) applyReview(c *gin.Context, archive bool) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var fields casefile.ReviewFields
	if !h.bindJSON(c, &fields) {
		return
	}

	save, desc, msg := h.review.SaveReview, "save review", "review saved"
	if archive {
		save, desc, msg = h.review.Archive, "archive case file", "case file archived"
	}
	cf, err := save(c.Request.Context(), id, fields)
	h.record(c, audit.ActionUpdate, "case_file", idRef(id), desc, err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, msg, gin.H{"id": cf.ID, "caseNo": cf.CaseNo, "status": cf.Status})
}
