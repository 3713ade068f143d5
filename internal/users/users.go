// Package users is the administrator facing account management.
package users

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/auth"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

type Service struct {
	db     *gorm.DB
	keys   *auth.KeyManager
	policy auth.PasswordPolicy
	logger *logger.Logger
}

func NewService(db *gorm.DB, keys *auth.KeyManager, policy auth.PasswordPolicy, log *logger.Logger) *Service {
	return &Service{db: db, keys: keys, policy: policy, logger: log}
}

// View is the public shape of a user.
type View struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	RealName   string    `json:"real_name"`
	Department string    `json:"department"`
	Role       string    `json:"role"`
	Status     int       `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toView(u *database.User) View {
	return View{
		ID:         u.ID,
		Username:   u.Username,
		RealName:   u.RealName,
		Department: u.Department,
		Role:       u.Role,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type Filter struct {
	Keyword string
	Role    string
	Status  *int
}

func (s *Service) List(ctx context.Context, f Filter, page database.Page) ([]View, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.User{})
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		q = q.Where("username LIKE ? OR real_name LIKE ? OR department LIKE ?", like, like, like)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	var rows []database.User
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}
	views := make([]View, 0, len(rows))
	for i := range rows {
		views = append(views, toView(&rows[i]))
	}
	return views, total, nil
}

func (s *Service) get(ctx context.Context, id uint) (*database.User, error) {
	var u database.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("user not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &u, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*View, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := toView(u)
	return &v, nil
}

func validRole(role string) bool {
	return role == database.RoleAdmin || role == database.RoleUser
}

// password decrypts value when encrypted is set and checks it against the
// policy.
func (s *Service) password(value string, encrypted bool) (string, error) {
	plain := value
	if encrypted {
		var err error
		plain, err = s.keys.DecryptPassword(value)
		if err != nil {
			return "", apperror.Wrap(err, apperror.CodeBadRequest, http.StatusBadRequest, "password decryption failed")
		}
	}
	if problems := s.policy.Validate(plain); len(problems) > 0 {
		return "", apperror.New(apperror.CodeValidationError, http.StatusBadRequest, strings.Join(problems, "; "))
	}
	hash, err := auth.HashPassword(plain)
	if err != nil {
		return "", apperror.Internal(err)
	}
	return hash, nil
}

type CreateRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=50"`
	Password   string `json:"password" binding:"required"`
	RealName   string `json:"real_name" binding:"max=100"`
	Department string `json:"department" binding:"max=100"`
	Role       string `json:"role"`
	Encrypted  bool   `json:"encrypted"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*View, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return nil, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "username is required")
	}
	if req.Role == "" {
		req.Role = database.RoleUser
	}
	if !validRole(req.Role) {
		return nil, apperror.InvalidParameter("role must be admin or user")
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&database.User{}).Where("username = ?", req.Username).Count(&n).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	if n > 0 {
		return nil, apperror.Conflict("username already exists")
	}

	hash, err := s.password(req.Password, req.Encrypted)
	if err != nil {
		return nil, err
	}

	u := &database.User{
		Username:     req.Username,
		PasswordHash: hash,
		RealName:     req.RealName,
		Department:   req.Department,
		Role:         req.Role,
		Status:       1,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, apperror.Internal(err)
	}
	s.logger.Info("User created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	v := toView(u)
	return &v, nil
}

type UpdateRequest struct {
	RealName   *string `json:"real_name"`
	Department *string `json:"department"`
	Role       *string `json:"role"`
	Status     *int    `json:"status"`
}

// Update changes the set fields. An administrator cannot disable themselves
// or change their own role.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id uint, req UpdateRequest) (*View, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	self := actor.UserID == id
	if self && req.Status != nil && *req.Status == 0 {
		return nil, apperror.BadRequest("cannot disable yourself")
	}
	if self && req.Role != nil && *req.Role != "" && *req.Role != u.Role {
		return nil, apperror.BadRequest("cannot change your own role")
	}
	if req.Role != nil && *req.Role != "" && !validRole(*req.Role) {
		return nil, apperror.InvalidParameter("role must be admin or user")
	}
	if req.Status != nil && *req.Status != 0 && *req.Status != 1 {
		return nil, apperror.InvalidParameter("status must be 0 or 1")
	}

	updates := map[string]interface{}{}
	if req.RealName != nil {
		updates["real_name"] = *req.RealName
	}
	if req.Department != nil {
		updates["department"] = *req.Department
	}
	if req.Role != nil && *req.Role != "" {
		updates["role"] = *req.Role
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(u).Updates(updates).Error; err != nil {
			return nil, apperror.Internal(err)
		}
	}
	return s.Get(ctx, id)
}

// SetStatus enables (1) or disables (0) a user.
func (s *Service) SetStatus(ctx context.Context, actor auth.Principal, id uint, status int) error {
	if status != 0 && status != 1 {
		return apperror.InvalidParameter("status must be 0 or 1")
	}
	if actor.UserID == id && status == 0 {
		return apperror.BadRequest("cannot disable yourself")
	}
	u, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("status", status).Error; err != nil {
		return apperror.Internal(err)
	}
	s.logger.Info("User status changed", "user_id", id, "status", status)
	return nil
}

// Delete disables the user. Rows are kept for the audit trail.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id uint) error {
	if actor.UserID == id {
		return apperror.BadRequest("cannot delete yourself")
	}
	u, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("status", 0).Error; err != nil {
		return apperror.Internal(err)
	}
	s.logger.Info("User deleted", "user_id", id)
	return nil
}

type PasswordRequest struct {
	Password  string `json:"password" binding:"required"`
	Encrypted bool   `json:"encrypted"`
}

// ResetPassword replaces the password of a user.
func (s *Service) ResetPassword(ctx context.Context, id uint, req PasswordRequest) error {
	u, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	hash, err := s.password(req.Password, req.Encrypted)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("password_hash", hash).Error; err != nil {
		return apperror.Internal(err)
	}
	s.logger.Info("User password reset", "user_id", id)
	return nil
}
