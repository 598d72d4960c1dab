package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/curtaincall/internal/attendance"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

type AttendanceHandler struct {
	svc    *attendance.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewAttendanceHandler(svc *attendance.Service, hub *websocket.Hub, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, hub: hub, logger: logger}
}

func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	var req struct {
		Present []string `json:"present"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Submit(r.Context(), groupID, session(r).UserID, req.Present)
	if err != nil && result == nil {
		writeServiceError(w, h.logger, "submit register", err)
		return
	}

	publish(h.hub, websocket.NewMessage("register", "submitted", groupID, map[string]any{
		"date":    result.Register.Date,
		"present": len(result.Register.Present),
	}), websocket.GroupTopic(groupID))
	for _, m := range result.Updated {
		publish(h.hub, websocket.NewMessage("member", "attended", m.ID, map[string]any{
			"streak":            m.Streak,
			"sessions_attended": m.SessionsAttended,
		}), websocket.MemberTopic(m.ID))
	}

	if err != nil {
		// The register was written but some members could not be updated.
		h.logger.Error("submit register", "group_id", groupID, "failed", len(result.Failed), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "register saved but some members could not be updated",
			"result": result,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.Registers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "list registers", err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Register(r.Context(), r.PathValue("id"), r.PathValue("date"))
	if err != nil {
		writeServiceError(w, h.logger, "get register", err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}
