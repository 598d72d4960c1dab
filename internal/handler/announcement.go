package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/auth"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

// maxLiveAnnouncements caps how many running announcements a caller sees.
const maxLiveAnnouncements = 10

var audiences = []string{auth.AudienceMember, auth.AudienceParent, auth.AudienceStaff}

type AnnouncementHandler struct {
	announcements *store.AnnouncementStore
	hub           *websocket.Hub
	logger        *slog.Logger
	now           func() time.Time
}

func NewAnnouncementHandler(as *store.AnnouncementStore, hub *websocket.Hub, logger *slog.Logger) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: as, hub: hub, logger: logger, now: time.Now}
}

type announcementRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Audience    []string  `json:"audience"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// parse validates req and returns the announcement it describes, or an
// error message.
func (req announcementRequest) parse() (*model.Announcement, string) {
	a := &model.Announcement{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	switch {
	case a.Title == "":
		return nil, "title is required"
	case utf8.RuneCountInString(a.Title) > maxNameLen:
		return nil, "title is too long"
	case a.Description == "":
		return nil, "description is required"
	case utf8.RuneCountInString(a.Description) > maxTextLen:
		return nil, "description is too long"
	case len(req.Audience) == 0:
		return nil, "audience is required"
	case a.StartsAt.IsZero() || a.EndsAt.IsZero():
		return nil, "starts_at and ends_at are required"
	case !a.EndsAt.After(a.StartsAt):
		return nil, "ends_at must be after starts_at"
	}

	for _, aud := range req.Audience {
		if !slices.Contains(audiences, aud) {
			return nil, "audience must be drawn from member, parent, staff"
		}
		if !slices.Contains(a.Audience, aud) {
			a.Audience = append(a.Audience, aud)
		}
	}
	slices.Sort(a.Audience)
	return a, ""
}

// List returns the announcements running now for the caller's audience.
// Admins see every announcement, past and scheduled included.
func (h *AnnouncementHandler) List(w http.ResponseWriter, r *http.Request) {
	s := session(r)

	var (
		list []model.Announcement
		err  error
	)
	if s.IsAdmin() {
		list, err = h.announcements.List(r.Context())
	} else {
		list, err = h.announcements.ListLive(r.Context(), h.now(), s.Audience(), maxLiveAnnouncements)
	}
	if err != nil {
		h.logger.Error("list announcements", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list announcements")
		return
	}
	if list == nil {
		list = []model.Announcement{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AnnouncementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, msg := req.parse()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	a.CreatedBy = session(r).UserID

	if err := h.announcements.Create(r.Context(), a); err != nil {
		h.writeStoreError(w, "create announcement", err)
		return
	}

	h.publish("created", a)
	writeJSON(w, http.StatusCreated, a)
}

func (h *AnnouncementHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, msg := req.parse()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	a.ID = r.PathValue("id")

	if err := h.announcements.Update(r.Context(), a); err != nil {
		h.writeStoreError(w, "update announcement", err)
		return
	}

	h.publish("updated", a)
	writeJSON(w, http.StatusOK, a)
}

func (h *AnnouncementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	a, err := h.announcements.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get announcement", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get announcement")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "announcement not found")
		return
	}

	if _, err := h.announcements.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete announcement", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete announcement")
		return
	}

	h.publish("deleted", a)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AnnouncementHandler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrAnnouncementOverlap):
		writeError(w, http.StatusConflict, "another announcement for the same audience overlaps this time range")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "announcement not found")
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save announcement")
	}
}

func (h *AnnouncementHandler) publish(action string, a *model.Announcement) {
	topics := make([]string, 0, len(a.Audience))
	for _, aud := range a.Audience {
		topics = append(topics, websocket.AnnouncementTopic(aud))
	}
	publish(h.hub, websocket.NewMessage("announcement", action, a.ID, map[string]any{"title": a.Title}), topics...)
}
