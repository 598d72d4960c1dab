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

type CatalogHandler struct {
	catalog *store.CatalogStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewCatalogHandler(cs *store.CatalogStore, hub *websocket.Hub, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cs, hub: hub, logger: logger}
}

type catalogRequest struct {
	Name     string `json:"name"`
	Cost     int    `json:"cost"`
	Emoji    string `json:"emoji"`
	ImageRef string `json:"image_ref"`
	Active   *bool  `json:"active"`
}

func (req *catalogRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Emoji = strings.TrimSpace(req.Emoji)
	req.ImageRef = strings.TrimSpace(req.ImageRef)
	switch {
	case req.Name == "":
		return "name is required"
	case utf8.RuneCountInString(req.Name) > maxNameLen:
		return "name is too long"
	case req.Cost <= 0:
		return "cost must be greater than 0"
	}
	return ""
}

func (req *catalogRequest) active() bool {
	return req.Active == nil || *req.Active
}

// List returns the catalog. Staff see retired items too.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context(), !session(r).IsStaff())
	if err != nil {
		h.logger.Error("list catalog", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list catalog")
		return
	}
	if items == nil {
		items = []model.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req catalogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := h.catalog.Create(r.Context(), req.Name, req.Cost, req.Emoji, req.ImageRef, req.active())
	if err != nil {
		h.logger.Error("create catalog item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create catalog item")
		return
	}

	publish(h.hub, websocket.NewMessage("catalog", "created", item.ID, nil), websocket.TopicRewards)
	writeJSON(w, http.StatusCreated, item)
}

func (h *CatalogHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get catalog item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get catalog item")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "catalog item not found")
		return
	}

	var req catalogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := h.catalog.Update(r.Context(), id, req.Name, req.Cost, req.Emoji, req.ImageRef, req.active())
	if err != nil {
		h.logger.Error("update catalog item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update catalog item")
		return
	}

	publish(h.hub, websocket.NewMessage("catalog", "updated", id, nil), websocket.TopicRewards)
	writeJSON(w, http.StatusOK, item)
}

func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete catalog item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete catalog item")
		return
	}

	publish(h.hub, websocket.NewMessage("catalog", "deleted", id, nil), websocket.TopicRewards)
	w.WriteHeader(http.StatusNoContent)
}
