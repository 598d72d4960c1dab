package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

const maxTextLen = 2000

// Categories a report may be filed under, by report type.
var reportCategories = map[string][]string{
	model.ReportAccident:     {"Burn", "Bruising", "Graze", "Cut", "Fracture", "Sprain", "Other"},
	model.ReportSafeguarding: {"Self-harm", "Inappropriate Behaviour", "Unusual Behaviour", "Bullying", "Other"},
}

type ReportHandler struct {
	reports *store.ReportStore
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
	now     func() time.Time
}

func NewReportHandler(rs *store.ReportStore, ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{reports: rs, members: ms, hub: hub, logger: logger, now: time.Now}
}

// Create files an accident or safeguarding report about a member of the
// group the incident happened in. Reports cannot be edited once filed.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string    `json:"type"`
		MemberID    string    `json:"member_id"`
		GroupID     string    `json:"group_id"`
		OccurredAt  time.Time `json:"occurred_at"`
		Category    string    `json:"category"`
		Location    string    `json:"location"`
		Description string    `json:"description"`
		ActionTaken string    `json:"action_taken"`
		Comments    string    `json:"comments"`
		SecondedBy  string    `json:"seconded_by"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	rep := &model.Report{
		Type:        req.Type,
		MemberID:    req.MemberID,
		GroupID:     req.GroupID,
		OccurredAt:  req.OccurredAt,
		Category:    strings.TrimSpace(req.Category),
		Location:    strings.TrimSpace(req.Location),
		Description: strings.TrimSpace(req.Description),
		ActionTaken: strings.TrimSpace(req.ActionTaken),
		Comments:    strings.TrimSpace(req.Comments),
		ReportedBy:  session(r).UserID,
	}
	if s := strings.TrimSpace(req.SecondedBy); s != "" {
		rep.SecondedBy = &s
	}
	if msg := h.validate(rep); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	m, err := h.members.GetByID(r.Context(), rep.MemberID)
	if err != nil {
		h.logger.Error("get member", "member_id", rep.MemberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if !slices.Contains(m.Groups, rep.GroupID) {
		writeError(w, http.StatusBadRequest, "member is not in this group")
		return
	}

	if err := h.reports.Create(r.Context(), rep); err != nil {
		h.logger.Error("create report", "member_id", rep.MemberID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to file report")
		return
	}
	rep.MemberName = m.Name

	h.logger.Info("report filed", "report_id", rep.ID, "type", rep.Type, "member_id", rep.MemberID)
	publish(h.hub, websocket.NewMessage("report", "filed", rep.ID, map[string]any{
		"type":      rep.Type,
		"member_id": rep.MemberID,
	}), websocket.TopicReports)
	writeJSON(w, http.StatusCreated, rep)
}

func (h *ReportHandler) validate(rep *model.Report) string {
	categories, ok := reportCategories[rep.Type]
	switch {
	case !ok:
		return "type must be accident or safeguarding"
	case rep.MemberID == "":
		return "member_id is required"
	case rep.GroupID == "":
		return "group_id is required"
	case rep.OccurredAt.IsZero():
		return "occurred_at is required"
	case rep.OccurredAt.After(h.now()):
		return "occurred_at cannot be in the future"
	case !slices.Contains(categories, rep.Category):
		return "category must be one of " + strings.Join(categories, ", ")
	case rep.Location == "":
		return "location is required"
	case rep.Description == "":
		return "description is required"
	case rep.ActionTaken == "":
		return "action_taken is required"
	case rep.Category == "Other" && rep.Comments == "":
		return "comments are required when category is Other"
	case rep.SecondedBy != nil && *rep.SecondedBy == rep.ReportedBy:
		return "a report cannot be seconded by its reporter"
	}
	for _, s := range []string{rep.Location, rep.Description, rep.ActionTaken, rep.Comments} {
		if utf8.RuneCountInString(s) > maxTextLen {
			return "text fields are limited to 2000 characters"
		}
	}
	return ""
}

// List returns reports newest first. member_id narrows it to one member.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("member_id")

	reports, err := h.reports.List(r.Context(), memberID)
	if err != nil {
		h.logger.Error("list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rep, err := h.reports.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get report", "report_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return
	}
	if rep == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
