package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

func startStream(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
}

// send writes one "data: <json>" record. It fails once the client is gone so
// producers can stop early.
func send(c *gin.Context, v interface{}) error {
	if err := c.Request.Context().Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// recoverStream must be deferred after startStream. Once the headers are out
// the recovery middleware can no longer answer, so a panic ends the stream
// with the given terminal record instead.
func (h *Handlers) recoverStream(c *gin.Context, final interface{}) {
	rec := recover()
	if rec == nil {
		return
	}
	h.logger.Error("Panic during stream",
		"request_id", c.GetString(RequestIDKey),
		"path", c.Request.URL.Path,
		"panic", fmt.Sprint(rec),
		"stack", string(debug.Stack()),
	)
	_ = send(c, final)
	c.Abort()
}
