package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"lojinha.org/internal/audit"
	"lojinha.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type setAdminRequest struct {
	Admin auth.FlexBool `json:"admin"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// only an existing admin may mint another admin
	if in.Admin.Bool() {
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
	}

	sess, err := a.auth.Register(r.Context(), in)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id": sess.User.ID,
		"email":   sess.User.Email,
	})

	writeJSON(w, http.StatusCreated, sess)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.login", map[string]any{
		"user_id": sess.User.ID,
	})

	writeJSON(w, http.StatusOK, sess)
}

// handleVerify is a lightweight token check: no store round trip, just the
// identity already decoded from the bearer token.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user": map[string]any{
			"id":    id.ID,
			"email": id.Email,
			"name":  id.Name,
			"admin": id.Admin,
		},
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	u, err := a.auth.FindUser(r.Context(), id.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleUserResource dispatches /v1/users/{id}/admin and
// /v1/users/{id}/history.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")

	switch {
	case strings.HasSuffix(path, "/admin"):
		id, ok := parseID(w, r, strings.TrimSuffix(path, "/admin"))
		if !ok {
			return
		}
		a.setAdmin(w, r, id)
	case strings.HasSuffix(path, "/history"):
		id, ok := parseID(w, r, strings.TrimSuffix(path, "/history"))
		if !ok {
			return
		}
		a.actorHistory(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) setAdmin(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	actor, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	var req setAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.auth.SetAdmin(r.Context(), userID, req.Admin.Bool())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.admin_set", map[string]any{
		"user_id": userID,
		"admin":   req.Admin.Bool(),
		"by":      actor.ID,
	})

	writeJSON(w, http.StatusOK, u)
}

func (a *API) actorHistory(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	records, err := a.catalog.ActorHistory(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *auth.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, r, http.StatusBadRequest, vErr.Message)
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrNationalIDTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "administrator privileges required")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parseID(w http.ResponseWriter, r *http.Request, raw string) (int64, bool) {
	raw = strings.Trim(raw, "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	return id, true
}
