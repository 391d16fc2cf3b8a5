// Package chat implements the in-memory session, matching, and moderation
// core of the WhibO server: waiting-pool pairing, 1:1 message routing, the
// shared public room, content filtering, and admin monitoring.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/whibo/whibo-server/internal/domain"
	"github.com/whibo/whibo-server/internal/identity"
	"github.com/whibo/whibo-server/internal/store"
)

// rateLimitInterval is the refill window for the per-participant message
// rate limit: RateLimit messages per interval.
const rateLimitInterval = time.Minute

// Options configures a Coordinator.
type Options struct {
	// BannedWords seeds the content filter.
	BannedWords []string

	// RateLimit is the per-participant messages-per-minute cap.
	RateLimit int

	// Maintenance starts the coordinator in maintenance mode.
	Maintenance bool

	// Authenticate validates an admin token. Required.
	Authenticate func(token string) bool

	// Settings, if non-nil, persists moderation settings across restarts.
	Settings store.Repository
}

// Coordinator is the single owner of all mutable chat state. Every inbound
// participant or admin action is processed to completion under one mutex, so
// no two state mutations interleave. External I/O (settings persistence) is
// scheduled off the lock.
type Coordinator struct {
	mu sync.Mutex

	registry *Registry
	matcher  *Matcher
	room     *Room
	filter   *Filter
	activity *ActivityLog

	sinks  map[string]EventSink
	admins map[string]EventSink

	limiters  map[string]*rateLimiter
	rateLimit int

	maintenance  bool
	authenticate func(token string) bool
	settings     store.Repository

	// settingsVersion is bumped under mu for every settings change; persistMu
	// and persistedVersion serialize the async writes so a slow older write
	// can never clobber a newer one.
	settingsVersion  uint64
	persistMu        sync.Mutex
	persistedVersion uint64

	totalMessages       int64
	totalPublicMessages int64
}

// NewCoordinator creates a coordinator with no connected participants.
func NewCoordinator(opts Options) *Coordinator {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 30
	}
	if opts.Authenticate == nil {
		opts.Authenticate = func(string) bool { return false }
	}

	filter := NewFilter(opts.BannedWords)
	return &Coordinator{
		registry:     NewRegistry(),
		matcher:      NewMatcher(),
		room:         NewRoom(filter),
		filter:       filter,
		activity:     NewActivityLog(DefaultActivityCapacity),
		sinks:        make(map[string]EventSink),
		admins:       make(map[string]EventSink),
		limiters:     make(map[string]*rateLimiter),
		rateLimit:    opts.RateLimit,
		maintenance:  opts.Maintenance,
		authenticate: opts.Authenticate,
		settings:     opts.Settings,
	}
}

// Connect registers a new participant with a generated anonymous profile and
// sends it back on the user-info event.
func (c *Coordinator) Connect(id string, sink EventSink) domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.registry.Register(id, identity.DisplayName())
	c.sinks[id] = sink

	c.activity.Record("connection", p.Name+" connected")
	slog.Info("Participant connected", "participant_id", id, "name", p.Name)

	sink.Send(EventUserInfo, p)
	return p
}

// Disconnect reconciles all state for a departing participant. The order
// matters: admin deregistration and room departure read registry data that
// the final cleanup step removes.
func (c *Coordinator) Disconnect(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, known := c.registry.Get(id)
	if !known {
		delete(c.sinks, id)
		delete(c.limiters, id)
		return
	}

	if _, isAdmin := c.admins[id]; isAdmin {
		c.activity.Record("admin", p.Name+" logged out as admin")
		delete(c.admins, id)
	}

	if c.room.Contains(id) {
		c.room.Leave(id)
		c.broadcastRoomMembersLocked()
		c.sendToRoomLocked(EventUserLeftRoom, RoomPresencePayload{UserID: id, Name: p.Name})
	}

	for _, partnerID := range c.matcher.DropParticipant(id) {
		c.sendLocked(partnerID, EventPartnerDisconnected, nil)
	}

	c.registry.Deregister(id)
	delete(c.sinks, id)
	delete(c.limiters, id)

	c.activity.Record("connection", p.Name+" disconnected")
	slog.Info("Participant disconnected", "participant_id", id, "name", p.Name)
}

// FindPartner enqueues the participant and pairs them immediately if anyone
// else is waiting. Both matched participants receive partner-found in the
// same action.
func (c *Coordinator) FindPartner(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.registry.Get(id); !known {
		return
	}
	if c.maintenance {
		c.rejectLocked(id, ErrMaintenance)
		return
	}
	if _, inSession := c.matcher.SessionOf(id); inSession {
		// Already paired; ignore rather than double-enqueue.
		return
	}

	c.matcher.EnqueueWaiting(id)

	session, partnerID, matched := c.matcher.AttemptMatch(id)
	if !matched {
		c.sendLocked(id, EventWaiting, nil)
		return
	}

	c.sendLocked(id, EventPartnerFound, PairedPayload{SessionID: session.ID, PartnerID: partnerID})
	c.sendLocked(partnerID, EventPartnerFound, PairedPayload{SessionID: session.ID, PartnerID: id})

	c.activity.Record("match", "Paired two participants")
	slog.Info("Match found", "session_id", session.ID, "participant_id", id, "partner_id", partnerID)
}

// SendMessage routes a 1:1 message after validating, in order: text length,
// session ownership against the claimed id, maintenance mode, and the
// per-participant rate limit. The text is redacted, never blocked, in the
// 1:1 flow. Any failed step short-circuits with an error to the sender only.
func (c *Coordinator) SendMessage(id, sessionID, rawText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := strings.TrimSpace(rawText)
	if !validLength(text) {
		c.rejectLocked(id, ErrInvalidMessage)
		return
	}

	session, ok := c.matcher.SessionOf(id)
	if !ok || session.ID != sessionID {
		c.rejectLocked(id, ErrInvalidSession)
		return
	}

	if c.maintenance {
		c.rejectLocked(id, ErrMaintenance)
		return
	}
	if !c.allowMessageLocked(id) {
		c.rejectLocked(id, ErrRateLimited)
		return
	}

	filtered := c.filter.Redact(text)
	c.matcher.RecordMessage(session.ID)
	c.totalMessages++

	payload := MessagePayload{Message: filtered, SenderID: id, Timestamp: time.Now()}
	for _, userID := range session.Users {
		c.sendLocked(userID, EventReceiveMessage, payload)
	}

	c.activity.Record("message", "Message in session "+shortID(session.ID))
}

// Typing forwards a typing indicator to the session partner. Indicators are
// fire-and-forget: a stale session id is dropped silently and nothing is
// mutated.
func (c *Coordinator) Typing(id, sessionID string, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.matcher.SessionOf(id)
	if !ok || session.ID != sessionID {
		return
	}

	partnerID, ok := session.PartnerOf(id)
	if !ok {
		return
	}
	c.sendLocked(partnerID, EventPartnerTyping, TypingPayload{IsTyping: isTyping, UserID: id})
}

// EndChat ends the participant's current session, notifying both sides.
// No-op if the participant is not in a session.
func (c *Coordinator) EndChat(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.matcher.SessionOf(id)
	if !ok {
		return
	}

	for _, userID := range c.matcher.EndSession(session.ID) {
		c.sendLocked(userID, EventChatEnded, nil)
	}

	c.activity.Record("session", "Session "+shortID(session.ID)+" ended")
	slog.Info("Chat ended", "session_id", session.ID, "ended_by", id)
}

// JoinRoom adds the participant to the public room, replays recent history
// to them, and broadcasts the updated membership. Room membership is
// orthogonal to the 1:1 flow.
func (c *Coordinator) JoinRoom(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, known := c.registry.Get(id)
	if !known {
		return
	}

	history := c.room.Join(p)
	members := c.room.Members()

	c.sendLocked(id, EventPublicRoomJoined, RoomJoinedPayload{History: history, Members: members})
	for _, memberID := range c.room.MemberIDs() {
		if memberID == id {
			continue
		}
		c.sendLocked(memberID, EventPublicMembers, RoomMembersPayload{Members: members})
		c.sendLocked(memberID, EventUserJoinedRoom, RoomPresencePayload{UserID: id, Name: p.Name})
	}

	c.activity.Record("room", p.Name+" joined the public room")
}

// LeaveRoom removes the participant from the public room and broadcasts the
// updated membership. Idempotent.
func (c *Coordinator) LeaveRoom(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.room.Contains(id) {
		return
	}
	p, _ := c.registry.Get(id)

	c.room.Leave(id)
	c.broadcastRoomMembersLocked()
	c.sendToRoomLocked(EventUserLeftRoom, RoomPresencePayload{UserID: id, Name: p.Name})

	c.activity.Record("room", p.Name+" left the public room")
}

// SendRoomMessage validates and posts a message to the public room. Unlike
// the 1:1 flow, banned content blocks the message outright: it is neither
// stored nor broadcast, and only the sender is told.
func (c *Coordinator) SendRoomMessage(id, rawText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, known := c.registry.Get(id)
	if !known {
		return
	}
	if !c.room.Contains(id) {
		c.rejectLocked(id, ErrInvalidMessage)
		return
	}
	if c.maintenance {
		c.rejectLocked(id, ErrMaintenance)
		return
	}
	if !c.allowMessageLocked(id) {
		c.rejectLocked(id, ErrRateLimited)
		return
	}

	msg, err := c.room.Post(p, rawText)
	if err != nil {
		c.rejectLocked(id, err)
		return
	}

	c.totalPublicMessages++
	c.sendToRoomLocked(EventPublicMessage, msg)
	c.activity.Record("room", p.Name+" posted to the public room")
}

// AdminAuthenticate validates the supplied token and, on success, promotes
// the participant to admin and registers them as a snapshot observer.
func (c *Coordinator) AdminAuthenticate(id, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sink, ok := c.sinks[id]
	if !ok {
		return
	}

	if !c.authenticate(token) {
		p, _ := c.registry.Get(id)
		c.activity.Record("admin", "Failed admin login attempt by "+p.Name)
		slog.Warn("Admin auth failed", "participant_id", id)
		sink.Send(EventAdminAuthFailed, nil)
		return
	}

	c.registry.SetRole(id, domain.RoleAdmin)
	c.admins[id] = sink

	p, _ := c.registry.Get(id)
	c.activity.Record("admin", p.Name+" logged in as admin")
	slog.Info("Admin authenticated", "participant_id", id)

	sink.Send(EventAdminAuthenticated, nil)
	c.snapshotLocked(sink)
}

// AdminDisconnectUser forcibly closes the target participant's connection.
// The usual disconnect reconciliation runs when the transport observes the
// closed connection.
func (c *Coordinator) AdminDisconnectUser(id, targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requireAdminLocked(id) {
		return
	}

	sink, ok := c.sinks[targetID]
	if !ok {
		return
	}

	p, _ := c.registry.Get(targetID)
	c.activity.Record("admin", "Admin disconnected "+p.Name)
	slog.Info("Admin disconnect", "admin_id", id, "target_id", targetID)

	// Closing a connection can block on the transport's close handshake.
	// That must happen off the coordinator lock.
	go sink.Close("disconnected by administrator")
}

// AdminEndSession terminates the given session, notifying both sides.
func (c *Coordinator) AdminEndSession(id, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requireAdminLocked(id) {
		return
	}

	users := c.matcher.EndSession(sessionID)
	for _, userID := range users {
		c.sendLocked(userID, EventChatEnded, nil)
	}
	if len(users) > 0 {
		c.activity.Record("admin", "Admin ended session "+shortID(sessionID))
	}
}

// AdminEndAllSessions terminates every active session.
func (c *Coordinator) AdminEndAllSessions(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requireAdminLocked(id) {
		return
	}

	sessions := c.matcher.Sessions()
	for _, s := range sessions {
		for _, userID := range c.matcher.EndSession(s.ID) {
			c.sendLocked(userID, EventChatEnded, nil)
		}
	}

	c.activity.Record("admin", fmt.Sprintf("Admin ended all sessions (%d)", len(sessions)))
	slog.Info("All sessions ended by admin", "admin_id", id, "count", len(sessions))
}

// AdminUpdateBannedWords atomically replaces the banned-word set.
func (c *Coordinator) AdminUpdateBannedWords(id string, words []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requireAdminLocked(id) {
		return
	}

	c.filter.ReplaceWords(words)
	c.activity.Record("admin", fmt.Sprintf("Banned word list updated (%d terms)", len(c.filter.Words())))
	c.persistSettingsLocked()
}

// AdminUpdateRateLimit sets the per-participant messages-per-minute cap.
// Existing limiters are reset so the new cap takes effect immediately.
func (c *Coordinator) AdminUpdateRateLimit(id string, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requireAdminLocked(id) {
		return
	}
	if limit <= 0 {
		c.rejectLocked(id, ErrInvalidArgument)
		return
	}

	c.rateLimit = limit
	c.limiters = make(map[string]*rateLimiter)
	c.activity.Record("admin", fmt.Sprintf("Rate limit set to %d msg/min", limit))
	c.persistSettingsLocked()
}

// AdminToggleMaintenance flips maintenance mode. While active, find-partner
// and message sends are rejected with a maintenance error.
func (c *Coordinator) AdminToggleMaintenance(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requireAdminLocked(id) {
		return
	}

	c.maintenance = !c.maintenance
	state := "disabled"
	if c.maintenance {
		state = "enabled"
	}
	c.activity.Record("admin", "Maintenance mode "+state)
	slog.Info("Maintenance mode toggled", "admin_id", id, "active", c.maintenance)
	c.persistSettingsLocked()
	c.broadcastSnapshotsLocked()
}

// Stats derives the aggregate counters on demand.
func (c *Coordinator) Stats() AggregateStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// Activity returns a newest-first copy of the activity feed.
func (c *Coordinator) Activity() []domain.ActivityEntry {
	return c.activity.Entries()
}

// BannedWords returns the current banned-term set.
func (c *Coordinator) BannedWords() []string {
	return c.filter.Words()
}

// StartSnapshotWorker pushes periodic stats/users/chats/activity snapshots
// to all registered admin observers until ctx is cancelled. Snapshots only
// read derived aggregates; they never mutate core state.
func (c *Coordinator) StartSnapshotWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.BroadcastSnapshots()
			}
		}
	}()
}

// BroadcastSnapshots pushes one round of admin snapshots immediately.
func (c *Coordinator) BroadcastSnapshots() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastSnapshotsLocked()
}

// AdminChatView is the admin console's session listing entry.
type AdminChatView struct {
	SessionID    string               `json:"session_id"`
	Users        []domain.Participant `json:"users"`
	MessageCount int                  `json:"message_count"`
	CreatedAt    time.Time            `json:"created_at"`
}

func (c *Coordinator) statsLocked() AggregateStats {
	return AggregateStats{
		ActiveUsers:         c.registry.Count(),
		WaitingUsers:        c.matcher.WaitingCount(),
		ActiveSessions:      c.matcher.SessionCount(),
		RoomUsers:           c.room.Size(),
		TotalMessages:       c.totalMessages,
		TotalPublicMessages: c.totalPublicMessages,
		MaintenanceMode:     c.maintenance,
	}
}

func (c *Coordinator) chatViewsLocked() []AdminChatView {
	sessions := c.matcher.Sessions()
	views := make([]AdminChatView, 0, len(sessions))
	for _, s := range sessions {
		view := AdminChatView{
			SessionID:    s.ID,
			MessageCount: s.MessageCount,
			CreatedAt:    s.CreatedAt,
		}
		for _, userID := range s.Users {
			if p, ok := c.registry.Get(userID); ok {
				view.Users = append(view.Users, p)
			}
		}
		views = append(views, view)
	}
	return views
}

func (c *Coordinator) snapshotLocked(sink EventSink) {
	sink.Send(EventAdminStats, c.statsLocked())
	sink.Send(EventAdminUsers, c.registry.List())
	sink.Send(EventAdminChats, c.chatViewsLocked())
	sink.Send(EventAdminActivity, c.activity.Entries())
}

func (c *Coordinator) broadcastSnapshotsLocked() {
	for _, sink := range c.admins {
		c.snapshotLocked(sink)
	}
}

func (c *Coordinator) requireAdminLocked(id string) bool {
	if _, ok := c.admins[id]; ok {
		return true
	}
	c.rejectLocked(id, ErrUnauthorized)
	return false
}

func (c *Coordinator) allowMessageLocked(id string) bool {
	rl, ok := c.limiters[id]
	if !ok {
		rl = newRateLimiter(c.rateLimit, rateLimitInterval)
		c.limiters[id] = rl
	}
	return rl.allow()
}

func (c *Coordinator) sendLocked(id, event string, payload any) {
	if sink, ok := c.sinks[id]; ok {
		sink.Send(event, payload)
	}
}

func (c *Coordinator) sendToRoomLocked(event string, payload any) {
	for _, memberID := range c.room.MemberIDs() {
		c.sendLocked(memberID, event, payload)
	}
}

func (c *Coordinator) broadcastRoomMembersLocked() {
	members := c.room.Members()
	c.sendToRoomLocked(EventPublicMembers, RoomMembersPayload{Members: members})
}

func (c *Coordinator) rejectLocked(id string, err error) {
	if sink, ok := c.sinks[id]; ok {
		sink.Send(EventError, ErrorPayload{Code: errorCode(err), Message: err.Error()})
	}
}

// persistSettingsLocked schedules a settings write off the coordinator lock.
// State is snapshotted first so the write never reads live structures. Each
// snapshot carries a version; writes apply in version order and a stale
// snapshot is dropped once a newer one has been saved.
func (c *Coordinator) persistSettingsLocked() {
	if c.settings == nil {
		return
	}

	c.settingsVersion++
	version := c.settingsVersion
	snapshot := &store.Settings{
		BannedWords: c.filter.Words(),
		RateLimit:   c.rateLimit,
		Maintenance: c.maintenance,
	}

	go c.persistSettings(version, snapshot)
}

func (c *Coordinator) persistSettings(version uint64, snapshot *store.Settings) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if version <= c.persistedVersion {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.settings.SaveSettings(ctx, snapshot); err != nil {
		slog.Warn("Failed to persist moderation settings", "error", err)
		return
	}
	c.persistedVersion = version
}

func validLength(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	count := 0
	for range trimmed {
		count++
		if count > MaxMessageLength {
			return false
		}
	}
	return true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
