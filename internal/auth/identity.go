package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vedran77/pulsefeed/internal/domain"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingClaims = errors.New("token is missing subject or name")
)

// Identity exposes the currently signed-in principal. Implementations must
// answer synchronously.
type Identity interface {
	Current() (domain.Principal, bool)
}

// Session is an Identity that holds a principal set at sign-in.
type Session struct {
	mu        sync.RWMutex
	principal domain.Principal
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) SignIn(p domain.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = domain.Principal{}
}

func (s *Session) Current() (domain.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, !s.principal.IsZero()
}

// SignInWithToken verifies a session token and signs its principal in.
func (s *Session) SignInWithToken(tokenStr, secret string) (domain.Principal, error) {
	p, err := ParseToken(tokenStr, secret)
	if err != nil {
		return domain.Principal{}, err
	}
	s.SignIn(p)
	return p, nil
}

type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for p, valid for ttl.
func IssueToken(secret string, p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Name: p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies an HS256 session token and returns its principal.
func ParseToken(tokenStr, secret string) (domain.Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if c.Subject == "" || c.Name == "" {
		return domain.Principal{}, ErrMissingClaims
	}

	return domain.Principal{ID: c.Subject, DisplayName: c.Name}, nil
}
