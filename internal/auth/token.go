package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultLifetime = 7 * 24 * time.Hour

// Claims is the signed identity payload. Field names follow the wire
// contract: nome is the display name, admin may arrive as 0/1 from tokens
// minted by the legacy backend.
type Claims struct {
	UserID int64    `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"nome"`
	Admin  FlexBool `json:"admin"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed identity tokens. Secret and
// lifetime are fixed at construction; nothing here reads ambient state.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. An empty secret is rejected:
// tokens signed with a guessable default would be forgeable.
func NewTokenService(secret string, lifetime time.Duration, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}
	s := &TokenService{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for the user with the configured lifetime. The
// signature covers the full claim set including expiry, so any mutation of
// any field invalidates it.
func (s *TokenService) Issue(u User) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.lifetime)
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Admin:  FlexBool(u.Admin),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry, returning the decoded claims.
// ErrTokenExpired means the signature was valid but exp has passed;
// everything else (wrong key, wrong method, tampered or truncated token)
// is ErrInvalidToken. Callers must not leak the distinction outward.
func (s *TokenService) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ParseLifetime parses a compact lifetime expression: a number followed by
// d (days), h (hours) or m (minutes). Malformed or empty expressions fall
// back to the 7-day default rather than failing startup.
func ParseLifetime(expr string) time.Duration {
	expr = strings.TrimSpace(expr)
	if len(expr) < 2 {
		return defaultLifetime
	}
	n, err := strconv.Atoi(expr[:len(expr)-1])
	if err != nil || n <= 0 {
		return defaultLifetime
	}
	switch expr[len(expr)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'h':
		return time.Duration(n) * time.Hour
	case 'm':
		return time.Duration(n) * time.Minute
	}
	return defaultLifetime
}
