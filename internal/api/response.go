package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
)

// PageInfo is the page block of a paginated response.
type PageInfo struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func ok(c *gin.Context, data interface{}) {
	okMessage(c, "success", data)
}

func okMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"errorCode": apperror.CodeSuccess,
		"message":   message,
		"data":      data,
	})
}

func paginated(c *gin.Context, items interface{}, total int64, p database.Page, meta interface{}) {
	body := gin.H{
		"errorCode": apperror.CodeSuccess,
		"message":   "success",
		"data":      items,
		"page":      PageInfo{Total: total, Page: p.Page, PageSize: p.PageSize},
	}
	if meta != nil {
		body["meta"] = meta
	}
	c.JSON(http.StatusOK, body)
}

// fail renders err as the error envelope and aborts the chain.
func (h *Handlers) fail(c *gin.Context, err error) {
	appErr := apperror.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(RequestIDKey),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(appErr.Status, gin.H{
		"errorCode": appErr.Code,
		"message":   appErr.Message,
		"data":      nil,
	})
}

// bindJSON decodes the body into dst and renders a validation error when it
// does not fit.
func (h *Handlers) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperror.Wrap(err, apperror.CodeValidationError, http.StatusBadRequest, "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *Handlers) paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		h.fail(c, apperror.InvalidParameter("invalid "+name))
		return 0, false
	}
	return uint(id), true
}

func pageFrom(c *gin.Context) database.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return database.NewPage(page, size)
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperror.InvalidParameter("invalid " + key)
	}
	return &v, nil
}
