package api

import (
	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/contentreview"
)

// documentText reads the uploaded .docx and returns its paragraph text.
func (h *Handlers) documentText(c *gin.Context) (string, bool) {
	fh, err := formFile(c, "file")
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	data, err := h.readUpload(fh)
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	text, err := contentreview.DocumentText(fh.Filename, data)
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	return text, true
}

func (h *Handlers) ReviewDocument(c *gin.Context) {
	text, valid := h.documentText(c)
	if !valid {
		return
	}
	res, err := h.contentReview.Review(c.Request.Context(), text)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, res)
}

func (h *Handlers) ReviewDocumentStream(c *gin.Context) {
	text, valid := h.documentText(c)
	if !valid {
		return
	}
	startStream(c)
	defer h.recoverStream(c, contentreview.Event{Error: "internal server error"})
	err := h.contentReview.ReviewStream(c.Request.Context(), text, func(ev contentreview.Event) error {
		return send(c, ev)
	})
	if err != nil {
		h.logger.Warn("Content review stream ended early", "error", err)
	}
}
