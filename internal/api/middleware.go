package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/auth"
)

// Context keys shared with the server middleware.
const (
	RequestIDKey = "request_id"
	principalKey = "principal"
	claimsKey    = "claims"
)

func bearerToken(c *gin.Context, allowQuery bool) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

// RequireAuth verifies the bearer token from the Authorization header and
// stores the caller on the context.
func (h *Handlers) RequireAuth() gin.HandlerFunc {
	return h.authenticate(false)
}

// RequirePreviewAuth also accepts the token as a query parameter. It guards
// only the file preview route, which browsers open directly.
func (h *Handlers) RequirePreviewAuth() gin.HandlerFunc {
	return h.authenticate(true)
}

func (h *Handlers) authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c, allowQuery)
		if token == "" {
			h.deny(c, nil, apperror.Unauthorized(apperror.CodeAuthRequired, "authentication required"))
			return
		}
		claims, err := h.auth.Verify(token)
		if err != nil {
			h.deny(c, nil, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Set(principalKey, auth.PrincipalFromClaims(claims))
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (h *Handlers) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		if !p.IsAdmin() {
			h.deny(c, &p, apperror.Forbidden("administrator role required"))
			return
		}
		c.Next()
	}
}

// deny records the rejected request and renders the error.
func (h *Handlers) deny(c *gin.Context, p *auth.Principal, err error) {
	appErr := apperror.FromError(err)
	e := audit.Entry{
		Action:       audit.ActionDenied,
		ResourceType: "auth",
		Description:  c.Request.Method + " " + c.Request.URL.Path,
		Status:       audit.StatusFailure,
		StatusCode:   appErr.Status,
		ErrorMessage: appErr.Message,
		Meta:         auditMeta(c),
	}
	if p != nil {
		e.UserID = p.IDPtr()
		e.Username = p.Username
	}
	_ = h.audit.Record(context.WithoutCancel(c.Request.Context()), e)
	h.fail(c, appErr)
}

func principal(c *gin.Context) auth.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(auth.Principal)
	return p
}

func claims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	cl, _ := v.(*auth.Claims)
	return cl
}

func auditMeta(c *gin.Context) audit.Meta {
	return audit.Meta{
		RequestID: c.GetString(RequestIDKey),
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// record writes an audit row for a mutating request. err is the outcome of
// the operation; nil means success.
func (h *Handlers) record(c *gin.Context, action, resourceType string, resourceID *uint, description string, err error) {
	p := principal(c)
	e := audit.Entry{
		UserID:       p.IDPtr(),
		Username:     p.Username,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		Status:       audit.StatusSuccess,
		StatusCode:   http.StatusOK,
		Meta:         auditMeta(c),
	}
	if err != nil {
		appErr := apperror.FromError(err)
		e.Status = audit.StatusFailure
		e.StatusCode = appErr.Status
		e.ErrorMessage = appErr.Message
	}
	_ = h.audit.Record(context.WithoutCancel(c.Request.Context()), e)
}

func idRef(id uint) *uint {
	return &id
}
