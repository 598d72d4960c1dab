package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

type EventHandler struct {
	events  *store.EventStore
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
	now     func() time.Time
}

func NewEventHandler(es *store.EventStore, ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: es, members: ms, hub: hub, logger: logger, now: time.Now}
}

// List returns events that have not started yet, soonest first.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListUpcoming(r.Context(), h.now())
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string    `json:"title"`
		Location string    `json:"location"`
		StartsAt time.Time `json:"starts_at"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if utf8.RuneCountInString(req.Title) > maxNameLen {
		writeError(w, http.StatusBadRequest, "title is too long")
		return
	}
	if req.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "starts_at is required")
		return
	}

	e, err := h.events.Create(r.Context(), req.Title, req.Location, req.StartsAt, session(r).UserID)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// RSVP toggles the calling member's attendance at an event.
func (h *EventHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	memberID := session(r).UserID

	e, err := h.events.GetByID(r.Context(), eventID)
	if err != nil {
		h.logger.Error("get event", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	m, err := h.members.GetByID(r.Context(), memberID)
	if err != nil {
		h.logger.Error("get member", "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if m == nil {
		writeError(w, http.StatusForbidden, "only members can RSVP")
		return
	}

	attending, err := h.events.ToggleAttendance(r.Context(), eventID, memberID)
	if err != nil {
		h.logger.Error("toggle attendance", "event_id", eventID, "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update RSVP")
		return
	}

	publish(h.hub, websocket.NewMessage("event", "rsvp", eventID, map[string]any{"attending": attending}),
		websocket.MemberTopic(memberID))
	writeJSON(w, http.StatusOK, map[string]bool{"attending": attending})
}

func (h *EventHandler) Attendees(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	attendees, err := h.events.ListAttendees(r.Context(), eventID)
	if err != nil {
		h.logger.Error("list attendees", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list attendees")
		return
	}
	if attendees == nil {
		attendees = []model.EventAttendee{}
	}
	writeJSON(w, http.StatusOK, attendees)
}
