package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service resolves credential and token presentations into authenticated
// identities and owns account registration. Transport concerns stay in
// httpapi; this layer only sees parsed values.
type Service struct {
	users  UserStore
	tokens *TokenService
}

// NewService constructs a Service.
func NewService(users UserStore, tokens *TokenService) *Service {
	return &Service{users: users, tokens: tokens}
}

// Session is the result of a successful register or login.
type Session struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register validates input, hashes the sensitive fields and creates the
// account. Uniqueness failures come back from the store as ErrEmailTaken /
// ErrNationalIDTaken; the caller gets a fresh token on success.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.Email == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	if in.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}
	if strings.TrimSpace(in.Phone) == "" {
		return nil, &ValidationError{Field: "phone", Message: "phone number is required"}
	}
	if strings.TrimSpace(in.NationalID) == "" {
		return nil, &ValidationError{Field: "national_id", Message: "national id is required"}
	}
	birth, err := time.Parse(time.DateOnly, in.BirthDate)
	if err != nil {
		return nil, &ValidationError{Field: "birth_date", Message: "birth date must be YYYY-MM-DD"}
	}

	passwordHash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Name:           in.Name,
		Email:          in.Email,
		PhoneHash:      Fingerprint(in.Phone),
		PasswordHash:   passwordHash,
		NationalIDHash: Fingerprint(in.NationalID),
		BirthDate:      birth,
		Admin:          in.Admin.Bool(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.newSession(u)
}

// Login authenticates an email/password pair. An unknown email and a wrong
// password are indistinguishable on purpose.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if VerifyPassword(u.PasswordHash, password) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.newSession(u)
}

// Authenticate resolves an Authorization header value into an identity.
// The scheme check is exact: two tokens, single space, case-sensitive
// "Bearer". Token verification failures collapse into
// ErrAuthenticationFailed so expiry and forgery are indistinguishable to
// whoever presented the token.
func (s *Service) Authenticate(header string) (Identity, error) {
	if header == "" {
		return Identity{}, ErrMissingCredentials
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Identity{}, ErrMalformedCredentials
	}

	claims, err := s.tokens.Verify(parts[1])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Name:  claims.Name,
		Admin: claims.Admin.Bool(),
	}, nil
}

// RequireAdmin gates privileged actions on the admin flag. The identity is
// already authenticated; denial is Forbidden, never an auth failure.
func RequireAdmin(id Identity) error {
	if !id.Admin {
		return ErrForbidden
	}
	return nil
}

// FindUser loads an account by id.
func (s *Service) FindUser(ctx context.Context, id int64) (*User, error) {
	return s.users.FindByID(ctx, id)
}

// SetAdmin grants or revokes the admin flag. Existing tokens are untouched:
// a revocation takes effect when they expire.
func (s *Service) SetAdmin(ctx context.Context, id int64, admin bool) (*User, error) {
	return s.users.SetAdmin(ctx, id, admin)
}

func (s *Service) newSession(u *User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(*u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{User: u, Token: token, ExpiresAt: expiresAt}, nil
}
