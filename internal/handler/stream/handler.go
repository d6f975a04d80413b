package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatHandler "github.com/zhouzirui/crisis-desk/backend/internal/handler/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
	"github.com/zhouzirui/crisis-desk/backend/pkg/utils"
)

// Handler reports the progress of a single turn via Server-Sent Events.
// Replies arrive whole; there are no partial deltas.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	State     string `json:"state,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes 注册SSE路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := strings.TrimSpace(r.URL.Query().Get("message"))
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, chatHandler.StatusFor(err), err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
		log.Printf("[stream] error handling request: %v", err)
	}
}

// HandleStreamRequest submits the message and emits start, then message or
// error, then end.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	h.send(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		State:     string(chat.StateAwaitingResponse),
	})

	outcome, err := h.chatSvc.SubmitText(ctx, sessionID, userMessage)
	switch {
	case err != nil:
		h.sendSSEError(w, flusher, sessionID, err.Error())
	case outcome.State == chat.StateRenderedError:
		h.sendSSEError(w, flusher, sessionID, outcome.Error)
	default:
		content := ""
		if outcome.Reply != nil {
			content = outcome.Reply.DisplayText
		}
		h.send(w, flusher, StreamResponse{
			Event:     "message",
			SessionID: sessionID,
			State:     string(outcome.State),
			Content:   content,
		})
	}

	h.send(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		State:     string(chat.StateIdle),
		Finished:  true,
	})

	log.Printf("[stream] completed turn for session=%s state=%s", sessionID, outcome.State)
	return err
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, sessionID, errorMsg string) {
	h.send(w, flusher, StreamResponse{
		Event:     "error",
		SessionID: sessionID,
		State:     string(chat.StateRenderedError),
		Error:     errorMsg,
	})
}

// send 以 StreamResponse.Event 作为 SSE 事件名
func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, ev StreamResponse) {
	if err := utils.SendSSEEvent(w, flusher, ev.Event, ev); err != nil {
		log.Printf("[stream] send %s event failed: %v", ev.Event, err)
	}
}
