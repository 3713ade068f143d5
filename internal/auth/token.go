package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the custom claims carried by access tokens. The subject is the
// username.
type Claims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	expire time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenManager(secret string, expire time.Duration, issuer string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		expire: expire,
		issuer: issuer,
		now:    time.Now,
	}
}

// Expire is the lifetime of issued tokens.
func (m *TokenManager) Expire() time.Duration {
	return m.expire
}

// Issue signs a token for the principal.
func (m *TokenManager) Issue(p Principal) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   p.Username,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
		},
		UserID: p.UserID,
		Role:   p.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, issuer and expiry.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
