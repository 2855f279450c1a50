package auth

import "errors"

var (
	// Credential-path failures. ErrInvalidCredentials deliberately covers
	// both "no such email" and "wrong password" so callers cannot probe
	// which emails are registered.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrNationalIDTaken    = errors.New("auth: national id already registered")

	// Token-path failures. The HTTP layer reports all four as one generic
	// authentication failure; the distinction exists for diagnostics only.
	ErrMissingCredentials   = errors.New("auth: authorization header missing")
	ErrMalformedCredentials = errors.New("auth: authorization header malformed")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrTokenExpired         = errors.New("auth: token expired")
	ErrAuthenticationFailed = errors.New("auth: authentication failed")

	// ErrForbidden marks an authenticated identity without admin rights.
	// Distinct from the authentication family: it maps to 403, never 401.
	ErrForbidden = errors.New("auth: admin privileges required")

	ErrNotFound = errors.New("auth: user not found")
)

// ValidationError reports a caller-fault input problem with a field-level
// message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "auth: " + e.Field + ": " + e.Message
}
