package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

type GroupHandler struct {
	groups  *store.GroupStore
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewGroupHandler(gs *store.GroupStore, ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: gs, members: ms, hub: hub, logger: logger}
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		h.logger.Error("list groups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	exists, err := h.groups.NameExists(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("check group name", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a group with that name already exists")
		return
	}

	g, err := h.groups.Create(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("create group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if !h.groupExists(w, r, groupID) {
		return
	}

	members, err := h.members.ListByGroup(r.Context(), groupID)
	if err != nil {
		h.logger.Error("list group members", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list group members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID, memberID := r.PathValue("id"), r.PathValue("member_id")
	if !h.groupExists(w, r, groupID) {
		return
	}

	m, err := h.members.GetByID(r.Context(), memberID)
	if err != nil {
		h.logger.Error("get member", "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	if err := h.groups.AddMember(r.Context(), groupID, memberID); err != nil {
		h.logger.Error("add group member", "group_id", groupID, "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	publish(h.hub, websocket.NewMessage("group", "member_added", groupID, map[string]any{"member_id": memberID}),
		websocket.GroupTopic(groupID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, memberID := r.PathValue("id"), r.PathValue("member_id")

	if err := h.groups.RemoveMember(r.Context(), groupID, memberID); err != nil {
		h.logger.Error("remove group member", "group_id", groupID, "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	publish(h.hub, websocket.NewMessage("group", "member_removed", groupID, map[string]any{"member_id": memberID}),
		websocket.GroupTopic(groupID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) groupExists(w http.ResponseWriter, r *http.Request, id string) bool {
	g, err := h.groups.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get group", "group_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get group")
		return false
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return false
	}
	return true
}
