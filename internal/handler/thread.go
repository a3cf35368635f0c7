package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"tush00nka/secujob_messaging/internal/pkg/auth"
	"tush00nka/secujob_messaging/internal/pkg/httputils"
	"tush00nka/secujob_messaging/internal/service"
	"tush00nka/secujob_messaging/internal/thread"
	"tush00nka/secujob_messaging/internal/ws"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type ThreadHandler struct {
	threadService service.ThreadService
	auth          *auth.Manager
	upgrader      *websocket.Upgrader
}

func NewThreadHandler(threadService service.ThreadService, authManager *auth.Manager, upgrader *websocket.Upgrader) *ThreadHandler {
	return &ThreadHandler{
		threadService: threadService,
		auth:          authManager,
		upgrader:      upgrader,
	}
}

func (h *ThreadHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/threads/{id}/messages", h.getMessages).Methods("GET", "OPTIONS")
	router.HandleFunc("/threads/{id}/unread", h.getUnread).Methods("GET", "OPTIONS")
	router.HandleFunc("/threads/{id}/presence", h.getPresence).Methods("GET", "OPTIONS")
	router.HandleFunc("/threads/{id}/ws", h.serveWS).Methods("GET")
}

type UnreadResponse struct {
	Unread int64 `json:"unread"`
}

type PresenceResponse struct {
	Online bool `json:"online"`
}

// @Summary Get messages
// @Description Get thread history, oldest first
// @ID get-thread-messages
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Application ID"
// @Success 200 {object} []model.Message
// @Failure 401 {object} httputils.ErrorResponse
// @Failure 403 {object} httputils.ErrorResponse
// @Failure 404 {object} httputils.ErrorResponse
// @Failure 500 {object} httputils.ErrorResponse
// @Router /threads/{id}/messages [get]
func (h *ThreadHandler) getMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	messages, err := h.threadService.Messages(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		serviceError(w, err, "failed to get messages")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, messages)
}

// @Summary Get unread count
// @Description Count messages of the other party not yet read by the caller
// @ID get-thread-unread
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Application ID"
// @Success 200 {object} UnreadResponse
// @Failure 401 {object} httputils.ErrorResponse
// @Failure 403 {object} httputils.ErrorResponse
// @Failure 404 {object} httputils.ErrorResponse
// @Router /threads/{id}/unread [get]
func (h *ThreadHandler) getUnread(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	n, err := h.threadService.UnreadCount(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		serviceError(w, err, "failed to count unread messages")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, UnreadResponse{Unread: n})
}

// @Summary Get peer presence
// @Description Whether the other party has a fresh heartbeat in the thread
// @ID get-thread-presence
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Application ID"
// @Success 200 {object} PresenceResponse
// @Failure 401 {object} httputils.ErrorResponse
// @Failure 403 {object} httputils.ErrorResponse
// @Failure 404 {object} httputils.ErrorResponse
// @Router /threads/{id}/presence [get]
func (h *ThreadHandler) getPresence(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	online, err := h.threadService.PeerOnline(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		serviceError(w, err, "failed to get presence")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, PresenceResponse{Online: online})
}

// @Summary Open thread
// @Description Upgrade to WebSocket and stream the thread. Incoming events: typing, send, load.
// @ID thread-ws
// @Param token query string true "JWT token"
// @Param id path string true "Application ID"
// @Success 101
// @Failure 401 {object} httputils.ErrorResponse
// @Failure 403 {object} httputils.ErrorResponse
// @Failure 404 {object} httputils.ErrorResponse
// @Router /threads/{id}/ws [get]
func (h *ThreadHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	token, _ := auth.TokenFromRequest(r)
	applyID := mux.Vars(r)["id"]

	// участие проверяем до апгрейда, чтобы ответить нормальным HTTP статусом,
	// а запускаем переписку только после него: Start отмечает сообщения прочитанными
	th, err := h.threadService.NewThread(r.Context(), claims.UserID, token, applyID)
	if err != nil {
		serviceError(w, err, "failed to open thread")
		return
	}
	defer th.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(context.Background(), conn, claims.UserID, applyID)
	go func() {
		if err := client.WritePump(); err != nil {
			log.Printf("websocket write failed for %s: %v", claims.UserID, err)
		}
	}()

	if err := th.Start(client.Context()); err != nil {
		log.Printf("failed to start thread %s for %s: %v", applyID, claims.UserID, err)
		client.SendJSON(ws.OutEvent{
			Type:      ws.EventTypeError,
			Error:     "failed to open thread",
			ApplyID:   applyID,
			Timestamp: time.Now(),
		})
		client.Close()
		return
	}
	client.SendJSON(stateEvent(th))

	go forwardEvents(client, th)

	client.ReadPump(func(c *ws.Client, ev ws.InEvent) {
		dispatch(c, th, ev)
	})
}

func forwardEvents(client *ws.Client, th *thread.Thread) {
	events := th.Events()
	for {
		select {
		case <-client.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				client.Close()
				return
			}
			client.SendJSON(ws.OutEvent{
				Type:      string(ev.Type),
				Message:   ev.Message,
				Messages:  ev.Messages,
				Typing:    ev.Typing,
				ApplyID:   th.ApplyID(),
				Timestamp: time.Now(),
			})
		}
	}
}

func dispatch(c *ws.Client, th *thread.Thread, ev ws.InEvent) {
	ctx := c.Context()

	switch ev.Type {
	case ws.EventTypeTyping:
		th.HandleTyping(ctx, ev.Text)

	case ws.EventTypeSend:
		err := th.SendMessage(ctx, ev.Text)
		switch {
		case err == nil:
			c.SendJSON(ws.OutEvent{
				Type:      ws.EventTypeMessageSent,
				State:     th.Snapshot(),
				ApplyID:   th.ApplyID(),
				Timestamp: time.Now(),
			})
		case errors.Is(err, thread.ErrRejected):
			// отправка запрещена правилами переписки, интерфейс уже это показывает
		default:
			log.Printf("send message failed for %s in %s: %v", th.UserID(), th.ApplyID(), err)
			c.SendJSON(ws.OutEvent{
				Type:      ws.EventTypeError,
				Error:     "failed to send message",
				State:     th.Snapshot(),
				ApplyID:   th.ApplyID(),
				Timestamp: time.Now(),
			})
		}

	case ws.EventTypeLoad:
		if err := th.LoadMessages(ctx); err != nil {
			c.SendJSON(ws.OutEvent{
				Type:      ws.EventTypeError,
				Error:     "failed to load messages",
				Timestamp: time.Now(),
			})
		}

	default:
		c.SendJSON(ws.OutEvent{
			Type:      ws.EventTypeError,
			Error:     "unknown event type",
			Timestamp: time.Now(),
		})
	}
}

func stateEvent(th *thread.Thread) ws.OutEvent {
	return ws.OutEvent{
		Type:      ws.EventTypeState,
		State:     th.Snapshot(),
		ApplyID:   th.ApplyID(),
		Timestamp: time.Now(),
	}
}

func (h *ThreadHandler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "missing token")
		return nil, false
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return nil, false
	}
	return claims, true
}

func serviceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, service.ErrThreadNotFound):
		httputils.ResponseError(w, http.StatusNotFound, "thread not found")
	case errors.Is(err, service.ErrNotParticipant):
		httputils.ResponseError(w, http.StatusForbidden, "not a participant")
	default:
		log.Printf("%s: %v", message, err)
		httputils.ResponseError(w, http.StatusInternalServerError, message)
	}
}
