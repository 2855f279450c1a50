package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"lojinha.org/internal/auth"
)

const authHeader = "Authorization"

// Storefront reads stay open; everything else carries a token.
var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}

// read-only paths open to anonymous visitors (GET only)
var publicReadPaths = []string{
	"/v1/products",
	"/v1/categories",
	"/v1/promotions",
}
var publicReadPrefixes = []string{
	"/v1/products/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path, r.Method) {
			// an anonymous request may still carry a token; attach the
			// identity when it verifies, ignore it otherwise
			if header := r.Header.Get(authHeader); header != "" {
				if id, err := a.auth.Authenticate(header); err == nil {
					r = r.WithContext(auth.ContextWithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		id, err := a.auth.Authenticate(r.Header.Get(authHeader))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingCredentials):
				writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			case errors.Is(err, auth.ErrMalformedCredentials):
				writeError(w, r, http.StatusUnauthorized, "invalid authorization scheme")
			case errors.Is(err, auth.ErrAuthenticationFailed):
				writeError(w, r, http.StatusUnauthorized, "authentication failed")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin resolves the caller and checks the admin flag. The false
// return means a response was already written.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	if err := auth.RequireAdmin(id); err != nil {
		writeError(w, r, http.StatusForbidden, "administrator privileges required")
		return auth.Identity{}, false
	}
	return id, true
}

func isPublicPath(path, method string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	if method != http.MethodGet {
		return false
	}
	for _, p := range publicReadPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicReadPrefixes {
		if strings.HasPrefix(path, prefix) && !strings.HasSuffix(path, "/history") {
			return true
		}
	}
	return false
}
