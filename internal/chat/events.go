package chat

import (
	"time"

	"github.com/whibo/whibo-server/internal/domain"
)

// Outbound event names. These match the vocabulary the frontend listens on.
const (
	EventUserInfo            = "user-info"
	EventWaiting             = "waiting-for-partner"
	EventPartnerFound        = "partner-found"
	EventReceiveMessage      = "receive-message"
	EventPartnerTyping       = "partner-typing"
	EventChatEnded           = "chat-ended"
	EventPartnerDisconnected = "partner-disconnected"
	EventError               = "error"

	EventPublicRoomJoined = "public-room-joined"
	EventPublicMessage    = "public-message-received"
	EventPublicMembers    = "public-room-members"
	EventUserJoinedRoom   = "user-joined-room"
	EventUserLeftRoom     = "user-left-room"

	EventAdminAuthenticated = "admin-authenticated"
	EventAdminAuthFailed    = "admin-auth-failed"
	EventAdminStats         = "admin-stats"
	EventAdminActivity      = "admin-activity"
	EventAdminUsers         = "admin-users"
	EventAdminChats         = "admin-chats"
)

// EventSink receives outbound events for a single connection. The transport
// layer implements it over a websocket; tests use in-memory recorders.
// Send must not block the caller indefinitely and must tolerate being called
// after the underlying connection is gone.
type EventSink interface {
	Send(event string, payload any)

	// Close tears down the underlying connection, e.g. when an admin
	// forcibly disconnects a participant.
	Close(reason string)
}

// PairedPayload accompanies a partner-found event.
type PairedPayload struct {
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id"`
}

// MessagePayload accompanies a receive-message event in a 1:1 session.
type MessagePayload struct {
	Message   string    `json:"message"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingPayload accompanies a partner-typing event.
type TypingPayload struct {
	IsTyping bool   `json:"is_typing"`
	UserID   string `json:"user_id"`
}

// ErrorPayload accompanies an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomJoinedPayload carries the replay window and membership snapshot sent to
// a participant entering the public room.
type RoomJoinedPayload struct {
	History []domain.PublicMessage `json:"history"`
	Members []domain.Participant   `json:"members"`
}

// RoomMembersPayload accompanies membership update broadcasts.
type RoomMembersPayload struct {
	Members []domain.Participant `json:"members"`
}

// RoomPresencePayload accompanies user-joined-room / user-left-room events.
type RoomPresencePayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// AggregateStats is derived on demand from component counts; it is never
// stored.
type AggregateStats struct {
	ActiveUsers         int   `json:"active_users"`
	WaitingUsers        int   `json:"waiting_users"`
	ActiveSessions      int   `json:"active_sessions"`
	RoomUsers           int   `json:"room_users"`
	TotalMessages       int64 `json:"total_messages"`
	TotalPublicMessages int64 `json:"total_public_messages"`
	MaintenanceMode     bool  `json:"maintenance_mode"`
}
