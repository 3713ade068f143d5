package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/auth"
	"github.com/JustJay7/case-archive/internal/users"
)

// PublicKey returns the RSA key clients encrypt passwords with.
func (h *Handlers) PublicKey(c *gin.Context) {
	keys := h.auth.Keys()
	ok(c, gin.H{
		"publicKey":       keys.PublicKeyPEM(),
		"publicKeyBase64": keys.PublicKeyBase64(),
	})
}

func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "login successful", res)
}

func (h *Handlers) Logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context(), claims(c), auditMeta(c))
	okMessage(c, "logged out", nil)
}

func (h *Handlers) Refresh(c *gin.Context) {
	res, err := h.auth.Refresh(principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, res)
}

func (h *Handlers) Me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), principal(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, user)
}

func (h *Handlers) ListUsers(c *gin.Context) {
	status, err := queryInt(c, "status")
	if err != nil {
		h.fail(c, err)
		return
	}
	page := pageFrom(c)
	items, total, err := h.users.List(c.Request.Context(), users.Filter{
		Keyword: c.Query("keyword"),
		Role:    c.Query("role"),
		Status:  status,
	}, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	paginated(c, items, total, page, nil)
}

func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, user)
}

func (h *Handlers) CreateUser(c *gin.Context) {
	var req users.CreateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		h.record(c, audit.ActionCreate, "user", nil, "create user "+req.Username, err)
		h.fail(c, err)
		return
	}
	h.record(c, audit.ActionCreate, "user", idRef(user.ID), "create user "+user.Username, nil)
	okMessage(c, "user created", user)
}

func (h *Handlers) UpdateUser(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var req users.UpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.users.Update(c.Request.Context(), principal(c), id, req)
	h.record(c, audit.ActionUpdate, "user", idRef(id), fmt.Sprintf("update user %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "user updated", user)
}

func (h *Handlers) DeleteUser(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	err := h.users.Delete(c.Request.Context(), principal(c), id)
	h.record(c, audit.ActionDelete, "user", idRef(id), fmt.Sprintf("disable user %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "user deleted", nil)
}

func (h *Handlers) SetUserStatus(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var req struct {
		Status *int `json:"status" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}
	err := h.users.SetStatus(c.Request.Context(), principal(c), id, *req.Status)
	h.record(c, audit.ActionUpdate, "user", idRef(id), fmt.Sprintf("set user %d status %d", id, *req.Status), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "status updated", nil)
}

func (h *Handlers) ResetUserPassword(c *gin.Context) {
	id, valid := h.paramID(c, "id")
	if !valid {
		return
	}
	var req users.PasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	err := h.users.ResetPassword(c.Request.Context(), id, req)
	h.record(c, audit.ActionUpdate, "user", idRef(id), fmt.Sprintf("reset password of user %d", id), err)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "password updated", nil)
}

func (h *Handlers) ListAudit(c *gin.Context) {
	page := pageFrom(c)
	items, total, err := h.audit.List(c.Request.Context(), audit.Filter{
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Action:    c.Query("action"),
		Username:  c.Query("username"),
		Status:    c.Query("status"),
	}, page)
	if err != nil {
		h.fail(c, apperror.Internal(err))
		return
	}
	paginated(c, items, total, page, nil)
}
