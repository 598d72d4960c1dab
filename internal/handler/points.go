package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/curtaincall/internal/points"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

type PointsHandler struct {
	svc    *points.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewPointsHandler(svc *points.Service, hub *websocket.Hub, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{svc: svc, hub: hub, logger: logger}
}

func (h *PointsHandler) Options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"amounts": h.svc.Amounts(),
		"reasons": h.svc.Reasons(),
	})
}

func (h *PointsHandler) Award(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")

	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.svc.Award(r.Context(), memberID, session(r).UserID, req.Amount, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "award points", err)
		return
	}

	publish(h.hub, websocket.NewMessage("points", "awarded", entry.ID, map[string]any{
		"member_id": memberID,
		"amount":    entry.Amount,
		"reason":    entry.Reason,
	}), websocket.MemberTopic(memberID))

	writeJSON(w, http.StatusCreated, entry)
}

func (h *PointsHandler) Log(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if !canAccessMember(w, r, memberID) {
		return
	}

	entries, err := h.svc.Log(r.Context(), memberID)
	if err != nil {
		writeServiceError(w, h.logger, "list points log", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if !canAccessMember(w, r, memberID) {
		return
	}

	balance, err := h.svc.Balance(r.Context(), memberID)
	if err != nil {
		writeServiceError(w, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": memberID, "balance": balance})
}
