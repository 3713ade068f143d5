package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/patrickmn/go-cache"
)

// Principal is the authenticated caller passed explicitly to services.
type Principal struct {
	UserID   uint
	Username string
	Role     string
}

func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

// IDPtr returns the user id for nullable created_by columns.
func (p Principal) IDPtr() *uint {
	if p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}

// LoginGuard counts consecutive failed logins per username and locks the
// username once the limit is reached.
type LoginGuard struct {
	attempts    *cache.Cache
	maxAttempts int
	mu          sync.Mutex
}

func NewLoginGuard(maxAttempts int, lockout time.Duration) *LoginGuard {
	return &LoginGuard{
		attempts:    cache.New(lockout, lockout),
		maxAttempts: maxAttempts,
	}
}

func guardKey(username string) string {
	return "login:" + strings.ToLower(username)
}

// Locked reports whether the username is currently locked out.
func (g *LoginGuard) Locked(username string) bool {
	if g.maxAttempts <= 0 {
		return false
	}
	v, found := g.attempts.Get(guardKey(username))
	return found && v.(int) >= g.maxAttempts
}

// Fail records one failed attempt. The lockout window restarts on every
// failure.
func (g *LoginGuard) Fail(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := guardKey(username)
	n := 1
	if v, found := g.attempts.Get(key); found {
		n = v.(int) + 1
	}
	g.attempts.Set(key, n, cache.DefaultExpiration)
}

// Reset clears the counter after a successful login.
func (g *LoginGuard) Reset(username string) {
	g.attempts.Delete(guardKey(username))
}

// Revocations remembers logged out token ids until the tokens would have
// expired anyway.
type Revocations struct {
	ids *expirable.LRU[string, struct{}]
}

func NewRevocations(size int, ttl time.Duration) *Revocations {
	if size <= 0 {
		size = 10000
	}
	return &Revocations{ids: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (r *Revocations) Revoke(tokenID string) {
	r.ids.Add(tokenID, struct{}{})
}

func (r *Revocations) Revoked(tokenID string) bool {
	return r.ids.Contains(tokenID)
}
