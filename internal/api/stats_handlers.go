package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/stats"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handlers) Dashboard(c *gin.Context) {
	d, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, d)
}

func (h *Handlers) DashboardStats(c *gin.Context) {
	s, err := h.stats.DashboardStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, s)
}

func (h *Handlers) RecentCaseFiles(c *gin.Context) {
	items, err := h.stats.RecentCaseFiles(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, items)
}

func statsFilter(c *gin.Context) (stats.Filter, error) {
	return stats.ParseFilter(c.Query("dateRange"), c.Query("case_type"), c.Query("department"))
}

func (h *Handlers) Statistics(c *gin.Context) {
	f, err := statsFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.stats.Statistics(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, s)
}

func (h *Handlers) ExportStatistics(c *gin.Context) {
	f, err := statsFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := h.stats.ExportXLSX(c.Request.Context(), f)
	h.record(c, audit.ActionExport, "statistics", nil, "export statistics workbook", err)
	if err != nil {
		h.fail(c, err)
		return
	}
	name := "统计报表-" + time.Now().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Knowledge graph endpoints answer with empty structures.

func (h *Handlers) KnowledgeGraphQuery(c *gin.Context) {
	ok(c, stats.EmptyGraph())
}

func (h *Handlers) KnowledgeGraphEntity(c *gin.Context) {
	ok(c, stats.EmptyEntity())
}

func (h *Handlers) KnowledgeGraphRelations(c *gin.Context) {
	ok(c, []stats.GraphEdge{})
}
