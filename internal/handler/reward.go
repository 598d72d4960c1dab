package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/redemption"
	"github.com/dukerupert/curtaincall/internal/store"
	"github.com/dukerupert/curtaincall/internal/websocket"
)

type RewardHandler struct {
	svc     *redemption.Service
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewRewardHandler(svc *redemption.Service, ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{svc: svc, members: ms, hub: hub, logger: logger}
}

func (h *RewardHandler) published(r *model.Reward, action string) {
	publish(h.hub, websocket.NewMessage("reward", action, r.ID, map[string]any{
		"member_id": r.MemberID,
		"item":      r.Item,
		"cost":      r.Cost,
	}), websocket.MemberTopic(r.MemberID), websocket.TopicRewards)
}

// Redeem spends the member's points on a catalog item. Only the member may
// redeem, and must supply their PIN if one is set.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if session(r).UserID != memberID {
		writeError(w, http.StatusForbidden, "members can only redeem their own points")
		return
	}

	var req struct {
		ItemID string `json:"item_id"`
		PIN    string `json:"pin"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := checkPIN(r.Context(), h.members, memberID, req.PIN); err != nil {
		if errors.Is(err, errIncorrectPIN) {
			writeError(w, http.StatusUnauthorized, "incorrect PIN")
			return
		}
		writeServiceError(w, h.logger, "check pin", apperr.Failed("check pin", err))
		return
	}

	reward, err := h.svc.RedeemCatalogItem(r.Context(), memberID, req.ItemID)
	if err != nil {
		writeServiceError(w, h.logger, "redeem", err)
		return
	}

	h.published(reward, "redeemed")
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if !canAccessMember(w, r, memberID) {
		return
	}

	rewards, err := h.svc.Vouchers(r.Context(), memberID)
	if err != nil {
		writeServiceError(w, h.logger, "list rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

// Outstanding lists vouchers waiting to be collected, for the collection desk.
func (h *RewardHandler) Outstanding(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.svc.Outstanding(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list outstanding rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

// QR returns the payload to render as the voucher's QR code.
func (h *RewardHandler) QR(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("member_id")
	if !canAccessMember(w, r, memberID) {
		return
	}

	reward, err := h.svc.Voucher(r.Context(), memberID, r.PathValue("reward_id"))
	if err != nil {
		writeServiceError(w, h.logger, "get reward", err)
		return
	}
	if reward.Collected {
		writeServiceError(w, h.logger, "get reward", apperr.ErrAlreadyCollected)
		return
	}

	payload, err := redemption.QRPayload(*reward)
	if err != nil {
		writeServiceError(w, h.logger, "qr payload", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payload": payload})
}

// Collect marks a voucher collected, identified either by the full
// (member_id, reward_id, redeem_code) triple or by a scanned QR payload.
func (h *RewardHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID   string `json:"member_id"`
		RewardID   string `json:"reward_id"`
		RedeemCode string `json:"redeem_code"`
		QR         string `json:"qr"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	staffID := session(r).UserID
	var reward *model.Reward
	var err error
	if req.QR != "" {
		reward, err = h.svc.CollectQR(r.Context(), req.QR, staffID)
	} else {
		reward, err = h.svc.Collect(r.Context(), req.MemberID, req.RewardID, req.RedeemCode, staffID)
	}
	if err != nil {
		writeServiceError(w, h.logger, "collect", err)
		return
	}

	h.published(reward, "collected")
	writeJSON(w, http.StatusOK, reward)
}

// CollectCode collects the outstanding voucher holding a manually entered
// 4-digit code.
func (h *RewardHandler) CollectCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	reward, err := h.svc.CollectByCode(r.Context(), req.Code, session(r).UserID)
	if err != nil {
		writeServiceError(w, h.logger, "collect by code", err)
		return
	}

	h.published(reward, "collected")
	writeJSON(w, http.StatusOK, reward)
}
