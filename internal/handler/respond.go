package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/auth"
	"github.com/dukerupert/curtaincall/internal/redemption"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP responses.
// Infrastructure failures are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var ve *apperr.ValidationError
	var ipe *apperr.InsufficientPointsError

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &ipe):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     fmt.Sprintf("not enough points: %d more needed", ipe.Shortfall()),
			"balance":   ipe.Balance,
			"cost":      ipe.Cost,
			"shortfall": ipe.Shortfall(),
		})
	case errors.Is(err, apperr.ErrLimitReached):
		writeError(w, http.StatusConflict, "you have already awarded points to this member today")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrAlreadyCollected):
		writeError(w, http.StatusConflict, "this reward has already been collected")
	case errors.Is(err, apperr.ErrCodeMismatch):
		writeError(w, http.StatusUnprocessableEntity, "redeem code does not match")
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case redemption.IsNoFreeCode(err):
		logger.Error(op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "no redeem codes available, try again later")
	default:
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// session returns the caller's session. Routes are registered behind the
// session middleware, so a missing session is a wiring bug.
func session(r *http.Request) auth.Session {
	s, _ := auth.FromContext(r.Context())
	return s
}

// canAccessMember writes 403 and returns false unless the caller is staff,
// the member themself or a linked parent.
func canAccessMember(w http.ResponseWriter, r *http.Request, memberID string) bool {
	if !session(r).CanAccessMember(memberID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func publish(hub *websocket.Hub, msg websocket.Message, topics ...string) {
	if hub != nil {
		hub.Publish(msg, topics...)
	}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
