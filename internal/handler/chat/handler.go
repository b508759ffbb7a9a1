// Package chat exposes the conversation endpoints: session lifecycle,
// message turns, and the SSE and WebSocket streaming transports.
package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatService "github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/session"
	"github.com/Kelvinsaleh/Hope-backend-sub000/pkg/utils"
)

// Handler serves the chat routes.
type Handler struct {
	svc      *chatService.Service
	upgrader websocket.Upgrader
}

// New creates the chat handler.
func New(svc *chatService.Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/sessions", h.handleCreateSession)
	r.Delete("/chat/sessions/{sessionID}", h.handleEndSession)
	r.Post("/chat/messages", h.handleSendMessage)
	r.Get("/chat/stream/{sessionID}", h.handleStream)
	r.Get("/chat/ws/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := identify(r, payload.UserID)

	sess, err := h.svc.CreateSession(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	userID := identify(r, "")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.svc.EndSession(r.Context(), userID, chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID    string `json:"userId"`
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := identify(r, payload.UserID)

	reply, err := h.svc.SendMessage(r.Context(), userID, payload.SessionID, payload.Message, nil)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleStream answers one turn over Server-Sent Events. EventSource cannot
// set headers, so identity and the message ride in the query string.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")
	userID := identify(r, r.URL.Query().Get("userId"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEEvent(w, flusher, "start", map[string]string{"sessionId": sessionID})

	reply, err := h.svc.SendMessage(r.Context(), userID, sessionID, message, func(chunk string) {
		utils.SendSSEEvent(w, flusher, "delta", map[string]string{"content": chunk})
	})
	if err != nil {
		utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}

	utils.SendSSEEvent(w, flusher, "message", reply)
	utils.SendSSEEvent(w, flusher, "end", map[string]bool{"finished": true})
}

type wsInbound struct {
	Message string `json:"message"`
}

type wsOutbound struct {
	Type    string             `json:"type"`
	Content string             `json:"content,omitempty"`
	Reply   *chatService.Reply `json:"reply,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// handleWebSocket runs a duplex conversation: one inbound frame per user
// turn, streamed deltas and a final reply frame back.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := identify(r, r.URL.Query().Get("userId"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read failed for session=%s: %v", sessionID, err)
			}
			return
		}

		reply, err := h.svc.SendMessage(r.Context(), userID, sessionID, in.Message, func(chunk string) {
			if werr := conn.WriteJSON(wsOutbound{Type: "delta", Content: chunk}); werr != nil {
				log.Printf("[ws] delta write failed: %v", werr)
			}
		})
		if err != nil {
			if werr := conn.WriteJSON(wsOutbound{Type: "error", Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(wsOutbound{Type: "message", Reply: reply}); err != nil {
			return
		}
	}
}

// identify resolves the caller identity: header first, then the body or
// query value the transport provided.
func identify(r *http.Request, fallback string) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return fallback
}

func respondServiceError(w http.ResponseWriter, err error) {
	var rle *chatService.RateLimitError
	if errors.As(err, &rle) {
		utils.RespondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "rate limit exceeded",
			"retryAfter": int(rle.RetryAfter.Seconds()) + 1,
		})
		return
	}

	var ve *chatService.ValidationError
	if errors.As(err, &ve) {
		utils.RespondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
		return
	}

	if errors.Is(err, session.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	log.Printf("[chat] request failed: %v", err)
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
