package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/curtaincall/internal/auth"
)

// SessionVerifier turns a bearer token into a session.
type SessionVerifier interface {
	Verify(token string) (auth.Session, error)
}

// RequireSession validates the bearer token and populates the request
// session. Browsers cannot set headers on websocket upgrades, so the token
// may also be passed as the access_token query parameter on GET requests.
func RequireSession(v SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			s, err := v.Verify(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := auth.WithSession(r.Context(), s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff checks that the session has the staff or admin role.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsStaff(r.Context()) {
			writeError(w, http.StatusForbidden, "staff only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks that the session has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := auth.FromContext(r.Context())
		if !s.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireParent checks that the session has the parent role.
func RequireParent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := auth.FromContext(r.Context())
		if s.Role != auth.RoleParent {
			writeError(w, http.StatusForbidden, "parents only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ChildLookup lists the member ids linked to a parent.
type ChildLookup interface {
	ChildIDs(ctx context.Context, parentID string) ([]string, error)
}

// LoadChildren fills Session.Children for parent sessions. It must run
// after RequireSession; other roles pass through untouched.
func LoadChildren(lookup ChildLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := auth.FromContext(r.Context())
			if !ok || s.Role != auth.RoleParent {
				next.ServeHTTP(w, r)
				return
			}

			ids, err := lookup.ChildIDs(r.Context(), s.UserID)
			if err != nil {
				logger.Error("load linked children", "user_id", s.UserID, "error", err)
				writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
				return
			}
			s.Children = ids
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), s)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="curtaincall"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
