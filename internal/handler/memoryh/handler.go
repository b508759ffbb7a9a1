// Package memoryh exposes CRUD endpoints over the user's stored memories.
package memoryh

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/facts"
	"github.com/Kelvinsaleh/Hope-backend-sub000/pkg/utils"
)

// Handler serves the memory routes.
type Handler struct {
	svc *chatService.Service
}

// New creates the memory handler.
func New(svc *chatService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the memory routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/memories", h.handleList)
	r.Patch("/memories/{factID}", h.handleUpdate)
	r.Delete("/memories/{factID}", h.handleDelete)
	r.Delete("/memories", h.handleForgetAll)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	memories, err := h.svc.ListMemories(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		Content    *string  `json:"content"`
		Importance *int     `json:"importance"`
		Tags       []string `json:"tags"`
		Context    *string  `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fact, err := h.svc.UpdateMemory(r.Context(), userID, chi.URLParam(r, "factID"), chatService.MemoryUpdate{
		Content:    payload.Content,
		Importance: payload.Importance,
		Tags:       payload.Tags,
		Context:    payload.Context,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, fact)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteMemory(r.Context(), userID, chi.URLParam(r, "factID")); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleForgetAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.ForgetAll(r.Context(), userID); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	return userID, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	var ve *chatService.ValidationError
	if errors.As(err, &ve) {
		utils.RespondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
		return
	}

	if errors.Is(err, facts.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "memory not found")
		return
	}

	log.Printf("[memory] request failed: %v", err)
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
