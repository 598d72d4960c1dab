package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
	"golang.org/x/crypto/bcrypt"
)

const maxNameLen = 100

var errIncorrectPIN = errors.New("incorrect PIN")

type MemberHandler struct {
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewMemberHandler(ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: ms, hub: hub, logger: logger}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context())
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if utf8.RuneCountInString(req.Name) > maxNameLen {
		writeError(w, http.StatusBadRequest, "name is too long")
		return
	}

	m, err := h.members.Create(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("create member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create member")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !canAccessMember(w, r, id) {
		return
	}

	m, err := h.members.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get member", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SetPIN sets or, given an empty pin, clears the member's redemption PIN.
// Once a PIN is set, only staff may change it without supplying the
// current one.
func (h *MemberHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !canAccessMember(w, r, id) {
		return
	}

	var req struct {
		PIN        string `json:"pin"`
		CurrentPIN string `json:"current_pin"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PIN != "" && (len(req.PIN) != 4 || !isDigits(req.PIN)) {
		writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits")
		return
	}

	existing, err := h.members.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get member", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	if existing.HasPIN && !session(r).IsStaff() {
		if req.CurrentPIN == "" {
			writeError(w, http.StatusBadRequest, "current_pin is required to change a PIN")
			return
		}
		if err := checkPIN(r.Context(), h.members, id, req.CurrentPIN); err != nil {
			if errors.Is(err, errIncorrectPIN) {
				writeError(w, http.StatusUnauthorized, "incorrect PIN")
				return
			}
			writeServiceError(w, h.logger, "check pin", apperr.Failed("check pin", err))
			return
		}
	}

	var hash string
	if req.PIN != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash PIN")
			return
		}
		hash = string(b)
	}

	if err := h.members.SetPINHash(r.Context(), id, hash); err != nil {
		h.logger.Error("set pin", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set PIN")
		return
	}

	publish(h.hub, websocket.NewMessage("member", "pin_changed", id, map[string]any{"has_pin": hash != ""}),
		websocket.MemberTopic(id))
	if hash == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

// checkPIN verifies pin against the member's stored hash. Members without a
// PIN pass.
func checkPIN(ctx context.Context, ms *store.MemberStore, memberID, pin string) error {
	hash, err := ms.GetPINHash(ctx, memberID)
	if err != nil {
		return err
	}
	if hash == "" {
		return nil
	}
	if pin == "" {
		return apperr.Invalid("pin", "is required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return errIncorrectPIN
	}
	return nil
}
