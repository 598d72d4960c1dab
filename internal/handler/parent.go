package handler

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

const (
	linkCodeLen      = 6
	linkCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func newLinkCode() (string, error) {
	b := make([]byte, linkCodeLen)
	size := big.NewInt(int64(len(linkCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = linkCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

func validLinkCode(code string) bool {
	if len(code) != linkCodeLen {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(linkCodeAlphabet, c) {
			return false
		}
	}
	return true
}

// ParentHandler links parent accounts to members and serves the linked
// members' records to the parent.
type ParentHandler struct {
	links   *store.LinkStore
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
	newCode func() (string, error)
}

func NewParentHandler(ls *store.LinkStore, ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *ParentHandler {
	return &ParentHandler{links: ls, members: ms, hub: hub, logger: logger, newCode: newLinkCode}
}

// LinkCode returns the member's link code, which the member hands to a
// parent. Only the member and staff may read it.
func (h *ParentHandler) LinkCode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s := session(r); !s.IsStaff() && s.UserID != id {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	code, err := h.links.LinkCode(r.Context(), id, h.newCode)
	if err != nil {
		writeServiceError(w, h.logger, "link code", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"member_id": id, "code": code})
}

// Link connects the calling parent to the member holding the given code.
func (h *ParentHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if !validLinkCode(code) {
		writeError(w, http.StatusBadRequest, "code must be 6 letters or digits")
		return
	}

	parentID := session(r).UserID
	memberID, err := h.links.Link(r.Context(), parentID, code)
	if errors.Is(err, apperr.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no member has this link code")
		return
	}
	if err != nil {
		h.logger.Error("link parent", "parent_id", parentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to link member")
		return
	}

	m, err := h.members.GetByID(r.Context(), memberID)
	if err != nil || m == nil {
		h.logger.Error("get member", "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}

	h.logger.Info("parent linked", "parent_id", parentID, "member_id", memberID)
	publish(h.hub, websocket.NewMessage("member", "parent_linked", memberID, map[string]any{"parent_id": parentID}),
		websocket.MemberTopic(memberID))
	writeJSON(w, http.StatusCreated, m)
}

// Children returns the members linked to the calling parent.
func (h *ParentHandler) Children(w http.ResponseWriter, r *http.Request) {
	children := []model.Member{}
	for _, id := range session(r).Children {
		m, err := h.members.GetByID(r.Context(), id)
		if err != nil {
			h.logger.Error("get member", "member_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get member")
			return
		}
		if m != nil {
			children = append(children, *m)
		}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *ParentHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	parentID := session(r).UserID
	memberID := r.PathValue("id")

	removed, err := h.links.Unlink(r.Context(), parentID, memberID)
	if err != nil {
		h.logger.Error("unlink parent", "parent_id", parentID, "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unlink member")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "member is not linked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
