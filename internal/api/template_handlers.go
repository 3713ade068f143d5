package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/templates"
)

func (h *Handlers) ListTemplates(c *gin.Context) {
	status, err := queryInt(c, "status")
	if err != nil {
		h.fail(c, err)
		return
	}
	page := pageFrom(c)
	items, total, err := h.templates.List(c.Request.Context(), templates.Filter{
		DocType: c.Query("docType"),
		Keyword: c.Query("keyword"),
		Status:  status,
	}, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) DocTypeOptions(c *gin.Context) {
	ok(c, templates.DocTypeOptions())
}

func (h *Handlers) GetTemplate(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	t, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, t)
}

func (h *Handlers) CreateTemplate(c *gin.Context) {
	fh, err := formFile(c, "file")
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := h.readUpload(fh)
	if err != nil {
		h.fail(c, err)
		return
	}

	name := c.PostForm("name")
	t, err := h.templates.Create(c.Request.Context(), templates.CreateInput{
		Name:        name,
		DocType:     c.PostForm("doc_type"),
		Description: c.PostForm("description"),
		Filename:    fh.Filename,
		Data:        data,
	})
	if err != nil {
		h.record(c, audit.ActionCreate, "template", nil, "create template "+name, err)
		h.fail(c, err)
		return
	}
	h.record(c, audit.ActionCreate, "template", idRef(t.ID), "create template "+t.Name, nil)
	okMessage(c, "template created", t)
}

func (h *Handlers) ReplaceTemplateFile(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	fh, err := formFile(c, "file")
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := h.readUpload(fh)
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.templates.ReplaceFile(c.Request.Context(), id, fh.Filename, data)
	h.record(c, audit.ActionUpdate, "template", idRef(id), fmt.Sprintf("replace file of template %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "template file replaced", t)
}

func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var req templates.UpdateInput
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.templates.Update(c.Request.Context(), id, req)
	h.record(c, audit.ActionUpdate, "template", idRef(id), fmt.Sprintf("update template %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "template updated", t)
}

func (h *Handlers) DeleteTemplate(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	err := h.templates.Delete(c.Request.Context(), id)
	h.record(c, audit.ActionDelete, "template", idRef(id), fmt.Sprintf("delete template %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "template deleted", nil)
}
