package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

const (
	loginPath  = "/api/v1/auth/login"
	logoutPath = "/api/v1/auth/logout"

	defaultRealName = "用户"
)

// LoginRequest is the login body. Password is base64 RSA ciphertext when
// Encrypted is set.
type LoginRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Encrypted bool   `json:"encrypted"`
}

// UserInfo is the user summary returned with a token.
type UserInfo struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	RealName string `json:"realName"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

type RefreshResult struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// Service implements login, logout, refresh and token verification.
type Service struct {
	db          *gorm.DB
	tokens      *TokenManager
	keys        *KeyManager
	guard       *LoginGuard
	revocations *Revocations
	audit       audit.Recorder
	logger      *logger.Logger
}

func NewService(db *gorm.DB, tokens *TokenManager, keys *KeyManager, guard *LoginGuard, revocations *Revocations, rec audit.Recorder, log *logger.Logger) *Service {
	return &Service{
		db:          db,
		tokens:      tokens,
		keys:        keys,
		guard:       guard,
		revocations: revocations,
		audit:       rec,
		logger:      log,
	}
}

func (s *Service) Keys() *KeyManager {
	return s.keys
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("Audit record failed", "action", e.Action, "error", err)
	}
}

func (s *Service) loginFailed(ctx context.Context, username string, userID *uint, reason string, status int, meta audit.Meta) {
	meta.Method = http.MethodPost
	meta.Path = loginPath
	s.record(ctx, audit.Entry{
		UserID:       userID,
		Username:     username,
		Action:       audit.ActionLogin,
		ResourceType: "auth",
		Description:  "login failed",
		Status:       audit.StatusFailure,
		StatusCode:   status,
		ErrorMessage: reason,
		Meta:         meta,
	})
}

// Login verifies the credentials and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta audit.Meta) (*LoginResult, error) {
	if s.guard.Locked(req.Username) {
		s.loginFailed(ctx, req.Username, nil, "account locked", http.StatusTooManyRequests, meta)
		return nil, apperror.New(apperror.CodeAccountLocked, http.StatusTooManyRequests,
			"too many failed login attempts, try again later")
	}

	password, err := s.keys.ResolvePassword(req.Password, req.Encrypted)
	if err != nil {
		s.loginFailed(ctx, req.Username, nil, err.Error(), http.StatusBadRequest, meta)
		return nil, apperror.Wrap(err, apperror.CodeBadRequest, http.StatusBadRequest, "password decryption failed")
	}

	var user database.User
	err = s.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.guard.Fail(req.Username)
		s.loginFailed(ctx, req.Username, nil, "user not found", http.StatusUnauthorized, meta)
		return nil, apperror.Unauthorized(apperror.CodeInvalidCredentials, "invalid username or password")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}

	if user.Status != 1 {
		s.loginFailed(ctx, user.Username, &user.ID, "user disabled", http.StatusForbidden, meta)
		return nil, apperror.New(apperror.CodeAccountDisabled, http.StatusForbidden, "user disabled")
	}

	if !CheckPassword(user.PasswordHash, password) {
		s.guard.Fail(req.Username)
		s.loginFailed(ctx, user.Username, &user.ID, "wrong password", http.StatusUnauthorized, meta)
		return nil, apperror.Unauthorized(apperror.CodeInvalidCredentials, "invalid username or password")
	}

	s.guard.Reset(req.Username)

	token, _, err := s.tokens.Issue(Principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return nil, apperror.Internal(err)
	}

	meta.Method = http.MethodPost
	meta.Path = loginPath
	s.record(ctx, audit.Entry{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       audit.ActionLogin,
		ResourceType: "auth",
		Description:  "login",
		Status:       audit.StatusSuccess,
		StatusCode:   http.StatusOK,
		Meta:         meta,
	})

	realName := user.RealName
	if realName == "" {
		realName = defaultRealName
	}
	return &LoginResult{
		Token: token,
		User: UserInfo{
			ID:       user.ID,
			Username: user.Username,
			RealName: realName,
			Role:     user.Role,
		},
	}, nil
}

// Logout revokes the token until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *Claims, meta audit.Meta) {
	s.revocations.Revoke(claims.ID)

	meta.Method = http.MethodPost
	meta.Path = logoutPath
	s.record(ctx, audit.Entry{
		UserID:       &claims.UserID,
		Username:     claims.Subject,
		Action:       audit.ActionLogout,
		ResourceType: "auth",
		Description:  "logout",
		Status:       audit.StatusSuccess,
		StatusCode:   http.StatusOK,
		Meta:         meta,
	})
}

// Refresh issues a fresh token for an authenticated caller.
func (s *Service) Refresh(p Principal) (*RefreshResult, error) {
	token, _, err := s.tokens.Issue(p)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &RefreshResult{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(s.tokens.Expire() / time.Second),
	}, nil
}

// Me loads the current user.
func (s *Service) Me(ctx context.Context, userID uint) (*database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("user not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &user, nil
}

// Verify parses a bearer token and rejects revoked ones.
func (s *Service) Verify(token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if errors.Is(err, ErrTokenExpired) {
		return nil, apperror.Unauthorized(apperror.CodeTokenExpired, "token expired")
	}
	if err != nil {
		return nil, apperror.Unauthorized(apperror.CodeInvalidToken, "invalid token")
	}
	if s.revocations.Revoked(claims.ID) {
		return nil, apperror.Unauthorized(apperror.CodeTokenRevoked, "token revoked")
	}
	return claims, nil
}

// PrincipalFromClaims converts verified claims.
func PrincipalFromClaims(c *Claims) Principal {
	return Principal{UserID: c.UserID, Username: c.Subject, Role: c.Role}
}
