package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/audit"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

func TestPasswordPolicy(t *testing.T) {
	policy := PasswordPolicy{MinLength: 8, NeedUpper: true, NeedLower: true, NeedDigit: true, NeedSpecial: true}

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"strong", "Str0ng!Pass", true},
		{"too short", "Ab1!", false},
		{"no upper", "weak0!pass", false},
		{"no digit", "Weak!Pass", false},
		{"no special", "Weak0Pass", false},
		{"common", "Password1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := policy.Validate(tt.password)
			if (len(problems) == 0) != tt.valid {
				t.Errorf("Validate(%q) = %v, want valid=%v", tt.password, problems, tt.valid)
			}
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Secret#123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "Secret#123") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "secret#123") {
		t.Error("expected mismatch for different case")
	}
}

func TestTokenIssueAndParse(t *testing.T) {
	m := NewTokenManager("test-secret", 30*time.Minute, "case-archive")

	token, issued, err := m.Issue(Principal{UserID: 7, Username: "alice", Role: database.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 7 || claims.Subject != "alice" || claims.Role != database.RoleAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.ID != issued.ID {
		t.Errorf("jti = %q, want %q", claims.ID, issued.ID)
	}

	other := NewTokenManager("other-secret", 30*time.Minute, "case-archive")
	if _, err := other.Parse(token); err == nil {
		t.Error("expected signature mismatch")
	}

	wrongIssuer := NewTokenManager("test-secret", 30*time.Minute, "someone-else")
	if _, err := wrongIssuer.Parse(token); err == nil {
		t.Error("expected issuer mismatch")
	}
}

func TestTokenExpired(t *testing.T) {
	m := NewTokenManager("test-secret", time.Minute, "case-archive")
	token, _, err := m.Issue(Principal{UserID: 1, Username: "alice", Role: database.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Parse(token); err != ErrTokenExpired {
		t.Errorf("Parse error = %v, want ErrTokenExpired", err)
	}
}

func TestKeysRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keys, err := LoadOrCreateKeys(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateKeys: %v", err)
	}

	enc, err := keys.EncryptPassword("Secret#123")
	if err != nil {
		t.Fatalf("EncryptPassword: %v", err)
	}

	reloaded, err := LoadOrCreateKeys(dir)
	if err != nil {
		t.Fatalf("reload keys: %v", err)
	}
	if reloaded.PublicKeyPEM() != keys.PublicKeyPEM() {
		t.Error("reloaded public key differs")
	}

	plain, err := reloaded.DecryptPassword(enc)
	if err != nil {
		t.Fatalf("DecryptPassword: %v", err)
	}
	if plain != "Secret#123" {
		t.Errorf("plain = %q", plain)
	}

	if got, err := keys.ResolvePassword("Secret#123", false); err != nil || got != "Secret#123" {
		t.Errorf("plaintext fallback = %q, %v", got, err)
	}
	if _, err := keys.ResolvePassword("not-ciphertext", true); err == nil {
		t.Error("expected decryption failure when encrypted is set")
	}
}

func TestLoginGuard(t *testing.T) {
	g := NewLoginGuard(3, time.Minute)
	for i := 0; i < 2; i++ {
		g.Fail("Alice")
	}
	if g.Locked("alice") {
		t.Fatal("locked too early")
	}
	g.Fail("alice")
	if !g.Locked("ALICE") {
		t.Fatal("expected lock after three failures")
	}
	g.Reset("alice")
	if g.Locked("alice") {
		t.Error("expected reset to unlock")
	}
}

func TestRevocations(t *testing.T) {
	r := NewRevocations(10, time.Minute)
	r.Revoke("abc")
	if !r.Revoked("abc") {
		t.Error("expected abc revoked")
	}
	if r.Revoked("def") {
		t.Error("def was never revoked")
	}
}

type authFixture struct {
	svc   *Service
	keys  *KeyManager
	audit *audit.Service
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	keys, err := LoadOrCreateKeys(t.TempDir())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	hash, err := HashPassword("Secret#123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := []database.User{
		{Username: "alice", PasswordHash: hash, Role: database.RoleAdmin},
		{Username: "bob", PasswordHash: hash, RealName: "Bob", Role: database.RoleUser},
	}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if err := db.Model(&database.User{}).Where("username = ?", "bob").Update("status", 0).Error; err != nil {
		t.Fatalf("disable bob: %v", err)
	}

	log := logger.NewNop()
	rec := audit.NewService(db, log)
	svc := NewService(db,
		NewTokenManager("secret", 30*time.Minute, "case-archive"),
		keys,
		NewLoginGuard(3, time.Minute),
		NewRevocations(100, time.Hour),
		rec, log)
	return authFixture{svc: svc, keys: keys, audit: rec}
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	encrypted, err := f.keys.EncryptPassword("Secret#123")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tests := []struct {
		name   string
		req    LoginRequest
		status int
		code   apperror.Code
	}{
		{"plaintext", LoginRequest{Username: "alice", Password: "Secret#123"}, http.StatusOK, apperror.CodeSuccess},
		{"encrypted", LoginRequest{Username: "alice", Password: encrypted, Encrypted: true}, http.StatusOK, apperror.CodeSuccess},
		{"bad ciphertext", LoginRequest{Username: "alice", Password: "garbage", Encrypted: true}, http.StatusBadRequest, apperror.CodeBadRequest},
		{"unknown user", LoginRequest{Username: "nobody", Password: "Secret#123"}, http.StatusUnauthorized, apperror.CodeInvalidCredentials},
		{"wrong password", LoginRequest{Username: "alice", Password: "nope"}, http.StatusUnauthorized, apperror.CodeInvalidCredentials},
		{"disabled", LoginRequest{Username: "bob", Password: "Secret#123"}, http.StatusForbidden, apperror.CodeAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Login(ctx, tt.req, audit.Meta{ClientIP: "127.0.0.1"})
			if tt.status == http.StatusOK {
				if err != nil {
					t.Fatalf("Login: %v", err)
				}
				if res.Token == "" || res.User.Username != "alice" {
					t.Errorf("unexpected result %+v", res)
				}
				if res.User.RealName != defaultRealName {
					t.Errorf("realName = %q, want default", res.User.RealName)
				}
				return
			}
			appErr := apperror.FromError(err)
			if appErr.Status != tt.status || appErr.Code != tt.code {
				t.Errorf("got status=%d code=%d, want %d/%d", appErr.Status, appErr.Code, tt.status, tt.code)
			}
		})
	}

	_, total, err := f.audit.List(ctx, audit.Filter{Action: audit.ActionLogin}, database.NewPage(1, 100))
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if total != int64(len(tests)) {
		t.Errorf("audit rows = %d, want one per attempt (%d)", total, len(tests))
	}
}

func TestLoginLockout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"}, audit.Meta{})
	}

	_, err := f.svc.Login(ctx, LoginRequest{Username: "alice", Password: "Secret#123"}, audit.Meta{})
	appErr := apperror.FromError(err)
	if appErr.Status != http.StatusTooManyRequests || appErr.Code != apperror.CodeAccountLocked {
		t.Errorf("got %d/%d, want locked", appErr.Status, appErr.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, LoginRequest{Username: "alice", Password: "Secret#123"}, audit.Meta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := f.svc.Verify(res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	refreshed, err := f.svc.Refresh(PrincipalFromClaims(claims))
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.TokenType != "bearer" || refreshed.ExpiresIn != 1800 {
		t.Errorf("unexpected refresh result %+v", refreshed)
	}

	f.svc.Logout(ctx, claims, audit.Meta{})

	_, err = f.svc.Verify(res.Token)
	if !apperror.Is(err, apperror.CodeTokenRevoked) {
		t.Errorf("Verify after logout = %v, want revoked", err)
	}
	if _, err := f.svc.Verify(refreshed.Token); err != nil {
		t.Errorf("refreshed token should still be valid: %v", err)
	}

	user, err := f.svc.Me(ctx, claims.UserID)
	if err != nil || user.Username != "alice" {
		t.Errorf("Me = %+v, %v", user, err)
	}
}
