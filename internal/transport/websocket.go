// Package transport bridges websocket connections to the chat coordinator:
// it accepts connections, decodes inbound action envelopes, and delivers
// outbound events.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/whibo/whibo-server/internal/chat"
	"github.com/whibo/whibo-server/internal/identity"
)

// Inbound action names, matching the frontend's emit vocabulary.
const (
	actionFindPartner       = "find-partner"
	actionSendMessage       = "send-message"
	actionTyping            = "typing"
	actionEndChat           = "end-chat"
	actionJoinPublicRoom    = "join-public-room"
	actionLeavePublicRoom   = "leave-public-room"
	actionSendPublicMessage = "send-public-message"

	actionAdminAuth           = "admin-auth"
	actionAdminDisconnectUser = "admin-disconnect-user"
	actionAdminEndChat        = "admin-end-chat"
	actionAdminEndAllChats    = "admin-end-all-chats"
	actionAdminBannedWords    = "admin-update-banned-words"
	actionAdminRateLimit      = "admin-update-rate-limit"
	actionAdminMaintenance    = "admin-maintenance-mode"
)

// Handler upgrades HTTP requests to websocket chat connections.
type Handler struct {
	coord         *chat.Coordinator
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket handler bound to the coordinator.
func NewHandler(coord *chat.Coordinator, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		coord:         coord,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for websocket upgrade. The connection is
// registered with the coordinator for its whole lifetime; disconnect
// reconciliation always runs when the read loop unwinds.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	id := identity.NewConnectionID()
	slog.Info("Websocket connection accepted", "participant_id", id, "ip", r.RemoteAddr)

	sink := newConnSink(ws)
	defer sink.Close("session ended")

	h.coord.Connect(id, sink)
	defer h.coord.Disconnect(id)

	h.readLoop(r, ws, id)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(r *http.Request, ws *websocket.Conn, id string) {
	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Websocket closed by client", "participant_id", id)
			} else {
				slog.Debug("Websocket read error", "error", err, "participant_id", id)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("Malformed envelope", "error", err, "participant_id", id)
			continue
		}

		h.dispatch(id, env)
	}
}

//nolint:gocognit // One arm per inbound action keeps the wire surface in one place.
func (h *Handler) dispatch(id string, env envelope) {
	switch env.Event {
	case actionFindPartner:
		h.coord.FindPartner(id)

	case actionSendMessage:
		var p struct {
			Message   string `json:"message"`
			SessionID string `json:"session_id"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.SendMessage(id, p.SessionID, p.Message)
		}

	case actionTyping:
		var p struct {
			SessionID string `json:"session_id"`
			IsTyping  bool   `json:"is_typing"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.Typing(id, p.SessionID, p.IsTyping)
		}

	case actionEndChat:
		h.coord.EndChat(id)

	case actionJoinPublicRoom:
		h.coord.JoinRoom(id)

	case actionLeavePublicRoom:
		h.coord.LeaveRoom(id)

	case actionSendPublicMessage:
		var p struct {
			Message string `json:"message"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.SendRoomMessage(id, p.Message)
		}

	case actionAdminAuth:
		var p struct {
			Token string `json:"token"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.AdminAuthenticate(id, p.Token)
		}

	case actionAdminDisconnectUser:
		var p struct {
			UserID string `json:"user_id"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.AdminDisconnectUser(id, p.UserID)
		}

	case actionAdminEndChat:
		var p struct {
			SessionID string `json:"session_id"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.AdminEndSession(id, p.SessionID)
		}

	case actionAdminEndAllChats:
		h.coord.AdminEndAllSessions(id)

	case actionAdminBannedWords:
		var p struct {
			Words []string `json:"words"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.AdminUpdateBannedWords(id, p.Words)
		}

	case actionAdminRateLimit:
		var p struct {
			Limit int `json:"limit"`
		}
		if decode(env.Data, &p, id, env.Event) {
			h.coord.AdminUpdateRateLimit(id, p.Limit)
		}

	case actionAdminMaintenance:
		h.coord.AdminToggleMaintenance(id)

	default:
		slog.Debug("Unknown inbound action", "event", env.Event, "participant_id", id)
	}
}

func decode(data json.RawMessage, v any, id, event string) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Debug("Malformed action payload", "event", event, "error", err, "participant_id", id)
		return false
	}
	return true
}
