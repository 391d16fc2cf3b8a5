package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/whibo/whibo-server/internal/store"
)

// recorderSink captures outbound events for assertions.
type recorderSink struct {
	mu     sync.Mutex
	events []recordedEvent
	closed bool
}

type recordedEvent struct {
	Event   string
	Payload any
}

func (r *recorderSink) Send(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Event: event, Payload: payload})
}

func (r *recorderSink) Close(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorderSink) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (r *recorderSink) last(event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Event == event {
			return r.events[i].Payload, true
		}
	}
	return nil, false
}

func (r *recorderSink) lastErrorCode() string {
	payload, ok := r.last(EventError)
	if !ok {
		return ""
	}
	return payload.(ErrorPayload).Code
}

func newTestCoordinator(bannedWords []string) *Coordinator {
	return NewCoordinator(Options{
		BannedWords:  bannedWords,
		RateLimit:    1000,
		Authenticate: func(token string) bool { return token == "secret" },
	})
}

func connect(c *Coordinator, id string) *recorderSink {
	sink := &recorderSink{}
	c.Connect(id, sink)
	return sink
}

func pair(t *testing.T, c *Coordinator, a, b *recorderSink, idA, idB string) string {
	t.Helper()
	c.FindPartner(idA)
	c.FindPartner(idB)

	payload, ok := a.last(EventPartnerFound)
	if !ok {
		t.Fatal("First participant never received partner-found")
	}
	return payload.(PairedPayload).SessionID
}

func TestCoordinator_PairsTwoParticipants(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")

	c.FindPartner("a")
	if _, ok := a.last(EventWaiting); !ok {
		t.Error("Lone participant should be told they are waiting")
	}

	c.FindPartner("b")

	pa, okA := a.last(EventPartnerFound)
	pb, okB := b.last(EventPartnerFound)
	if !okA || !okB {
		t.Fatal("Both participants should receive partner-found")
	}
	if pa.(PairedPayload).SessionID != pb.(PairedPayload).SessionID {
		t.Error("Both participants should share one session id")
	}
	if pa.(PairedPayload).PartnerID != "b" || pb.(PairedPayload).PartnerID != "a" {
		t.Error("Partner ids crossed incorrectly")
	}

	stats := c.Stats()
	if stats.WaitingUsers != 0 {
		t.Errorf("Waiting pool should be empty after match, got %d", stats.WaitingUsers)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("Expected exactly one session, got %d", stats.ActiveSessions)
	}
}

func TestCoordinator_SendMessageDelivered(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")

	c.SendMessage("a", sid, "hello there")

	for name, sink := range map[string]*recorderSink{"a": a, "b": b} {
		payload, ok := sink.last(EventReceiveMessage)
		if !ok {
			t.Fatalf("Participant %s did not receive the message", name)
		}
		msg := payload.(MessagePayload)
		if msg.Message != "hello there" || msg.SenderID != "a" {
			t.Errorf("Unexpected payload for %s: %+v", name, msg)
		}
	}

	if c.Stats().TotalMessages != 1 {
		t.Errorf("Expected lifetime counter 1, got %d", c.Stats().TotalMessages)
	}
}

func TestCoordinator_SendMessageForgedSession(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	pair(t, c, a, b, "a", "b")

	c.SendMessage("a", "forged-session-id", "sneaky")

	if code := a.lastErrorCode(); code != "invalid_session" {
		t.Errorf("Expected invalid_session error, got %q", code)
	}
	if b.count(EventReceiveMessage) != 0 {
		t.Error("Forged message must never reach the partner")
	}
}

func TestCoordinator_SendMessageValidation(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")

	c.SendMessage("a", sid, "   ")
	if code := a.lastErrorCode(); code != "invalid_message" {
		t.Errorf("Blank text: expected invalid_message, got %q", code)
	}

	c.SendMessage("a", sid, strings.Repeat("x", MaxMessageLength+1))
	if code := a.lastErrorCode(); code != "invalid_message" {
		t.Errorf("Over-length text: expected invalid_message, got %q", code)
	}
	if b.count(EventReceiveMessage) != 0 {
		t.Error("Rejected messages must not be broadcast")
	}
}

// Public room blocks banned content outright; a 1:1 session only redacts it.
func TestCoordinator_ModerationAsymmetry(t *testing.T) {
	c := newTestCoordinator([]string{"spam"})
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")

	c.JoinRoom("a")
	c.SendRoomMessage("a", "this is spam")
	if code := a.lastErrorCode(); code != "content_blocked" {
		t.Errorf("Public room should block banned content, got %q", code)
	}
	if a.count(EventPublicMessage) != 0 {
		t.Error("Blocked public message must not be broadcast")
	}

	c.SendMessage("a", sid, "this is spam")
	payload, ok := b.last(EventReceiveMessage)
	if !ok {
		t.Fatal("1:1 message with banned content should still be delivered")
	}
	if got := payload.(MessagePayload).Message; got != "this is ****" {
		t.Errorf("Expected redacted text 'this is ****', got %q", got)
	}
}

func TestCoordinator_Typing(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")

	c.Typing("a", sid, true)
	payload, ok := b.last(EventPartnerTyping)
	if !ok {
		t.Fatal("Partner should receive the typing indicator")
	}
	if p := payload.(TypingPayload); !p.IsTyping || p.UserID != "a" {
		t.Errorf("Unexpected typing payload: %+v", p)
	}

	c.Typing("a", "stale-session", true)
	if b.count(EventPartnerTyping) != 1 {
		t.Error("Typing with a stale session id must be dropped silently")
	}
}

func TestCoordinator_EndChat(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")

	c.EndChat("a")

	if a.count(EventChatEnded) != 1 || b.count(EventChatEnded) != 1 {
		t.Error("Both sides should be notified the chat ended")
	}
	if c.Stats().ActiveSessions != 0 {
		t.Error("Session should be removed")
	}

	c.SendMessage("b", sid, "anyone there?")
	if code := b.lastErrorCode(); code != "invalid_session" {
		t.Errorf("Message after end should fail with invalid_session, got %q", code)
	}

	// Ending again is a safe no-op.
	c.EndChat("a")
}

func TestCoordinator_DisconnectNotifiesPartnerOnce(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	pair(t, c, a, b, "a", "b")

	c.Disconnect("a")

	if got := b.count(EventPartnerDisconnected); got != 1 {
		t.Errorf("Partner should be notified exactly once, got %d", got)
	}
	stats := c.Stats()
	if stats.ActiveSessions != 0 {
		t.Error("No residual session may remain after disconnect")
	}
	if stats.ActiveUsers != 1 {
		t.Errorf("Expected one remaining participant, got %d", stats.ActiveUsers)
	}
}

func TestCoordinator_PublicRoomScenario(t *testing.T) {
	c := newTestCoordinator(nil)
	x := connect(c, "x")
	y := connect(c, "y")

	c.JoinRoom("x")
	payload, ok := x.last(EventPublicRoomJoined)
	if !ok {
		t.Fatal("Joiner should receive public-room-joined")
	}
	joined := payload.(RoomJoinedPayload)
	if len(joined.History) != 0 {
		t.Errorf("Expected empty history, got %d", len(joined.History))
	}
	if len(joined.Members) != 1 || joined.Members[0].ID != "x" {
		t.Errorf("Expected membership {x}, got %v", joined.Members)
	}

	c.JoinRoom("y")
	payload, _ = y.last(EventPublicRoomJoined)
	joined = payload.(RoomJoinedPayload)
	if len(joined.History) != 0 || len(joined.Members) != 2 {
		t.Errorf("Second joiner: expected empty history and 2 members, got %d/%d",
			len(joined.History), len(joined.Members))
	}
	if x.count(EventUserJoinedRoom) != 1 {
		t.Error("Existing member should see user-joined-room")
	}

	c.SendRoomMessage("x", "hello")
	for name, sink := range map[string]*recorderSink{"x": x, "y": y} {
		if got := sink.count(EventPublicMessage); got != 1 {
			t.Errorf("Participant %s: expected 1 public message, got %d", name, got)
		}
	}

	c.LeaveRoom("y")
	payload, ok = x.last(EventPublicMembers)
	if !ok {
		t.Fatal("Remaining member should receive a membership broadcast")
	}
	members := payload.(RoomMembersPayload).Members
	if len(members) != 1 || members[0].ID != "x" {
		t.Errorf("Expected membership {x} after leave, got %v", members)
	}
}

// Room membership and the 1:1 flow are orthogonal: a participant may wait
// for a partner while sitting in the public room.
func TestCoordinator_RoomAndWaitingOverlap(t *testing.T) {
	c := newTestCoordinator(nil)
	x := connect(c, "x")

	c.JoinRoom("x")
	c.FindPartner("x")

	if _, ok := x.last(EventWaiting); !ok {
		t.Error("Room member should still be able to wait for a partner")
	}
	stats := c.Stats()
	if stats.RoomUsers != 1 || stats.WaitingUsers != 1 {
		t.Errorf("Expected overlap of room and waiting, got %+v", stats)
	}
}

func TestCoordinator_AdminAuthenticate(t *testing.T) {
	c := newTestCoordinator(nil)
	adm := connect(c, "adm")

	c.AdminAuthenticate("adm", "wrong")
	if adm.count(EventAdminAuthFailed) != 1 {
		t.Error("Bad token should produce admin-auth-failed")
	}

	c.AdminAuthenticate("adm", "secret")
	if adm.count(EventAdminAuthenticated) != 1 {
		t.Error("Valid token should produce admin-authenticated")
	}
	if adm.count(EventAdminStats) == 0 || adm.count(EventAdminUsers) == 0 {
		t.Error("Authentication should be followed by an immediate snapshot")
	}
}

func TestCoordinator_AdminActionsRequireAuth(t *testing.T) {
	c := newTestCoordinator(nil)
	guest := connect(c, "guest")

	c.AdminEndAllSessions("guest")
	if code := guest.lastErrorCode(); code != "unauthorized" {
		t.Errorf("Expected unauthorized, got %q", code)
	}

	c.AdminToggleMaintenance("guest")
	c.FindPartner("guest")
	if _, ok := guest.last(EventWaiting); !ok {
		t.Error("Maintenance must not be toggled by a non-admin")
	}
}

func TestCoordinator_AdminEndSession(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	c.AdminEndSession("adm", sid)

	if a.count(EventChatEnded) != 1 || b.count(EventChatEnded) != 1 {
		t.Error("Both session members should be notified")
	}
	if c.Stats().ActiveSessions != 0 {
		t.Error("Session should be gone")
	}

	// Unknown session id is a safe no-op.
	c.AdminEndSession("adm", "missing")
}

func TestCoordinator_AdminEndAllSessions(t *testing.T) {
	c := newTestCoordinator(nil)
	sinks := make(map[string]*recorderSink)
	for _, id := range []string{"a", "b", "c", "d"} {
		sinks[id] = connect(c, id)
		c.FindPartner(id)
	}
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	if c.Stats().ActiveSessions != 2 {
		t.Fatalf("Expected 2 sessions, got %d", c.Stats().ActiveSessions)
	}

	c.AdminEndAllSessions("adm")

	if c.Stats().ActiveSessions != 0 {
		t.Error("All sessions should be terminated")
	}
	for id, sink := range sinks {
		if sink.count(EventChatEnded) != 1 {
			t.Errorf("Participant %s should see chat-ended once", id)
		}
	}
}

func TestCoordinator_AdminDisconnectUser(t *testing.T) {
	c := newTestCoordinator(nil)
	target := connect(c, "target")
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	c.AdminDisconnectUser("adm", "target")

	waitClosed(t, target)
}

func waitClosed(t *testing.T, sink *recorderSink) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		closed := sink.closed
		sink.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Target connection should be closed")
}

// A connection whose close handshake stalls must not stall the coordinator:
// the close runs off the lock, so other actions keep being served.
func TestCoordinator_AdminDisconnectDoesNotBlockCoordinator(t *testing.T) {
	c := newTestCoordinator(nil)
	release := make(chan struct{})
	target := &stallingCloseSink{release: release}
	c.Connect("target", target)
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	done := make(chan struct{})
	go func() {
		c.AdminDisconnectUser("adm", "target")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AdminDisconnectUser blocked on the target's close")
	}

	// Lock must be free while the close is still pending.
	if c.Stats().ActiveUsers != 2 {
		t.Error("Coordinator stopped serving while a close was pending")
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if target.isClosed() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Target connection was never closed")
}

type stallingCloseSink struct {
	mu      sync.Mutex
	release chan struct{}
	closed  bool
}

func (s *stallingCloseSink) Send(string, any) {}

func (s *stallingCloseSink) Close(string) {
	<-s.release
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *stallingCloseSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestCoordinator_AdminUpdateBannedWords(t *testing.T) {
	c := newTestCoordinator(nil)
	x := connect(c, "x")
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")
	c.JoinRoom("x")

	c.AdminUpdateBannedWords("adm", []string{"forbidden"})

	c.SendRoomMessage("x", "totally forbidden text")
	if code := x.lastErrorCode(); code != "content_blocked" {
		t.Errorf("Expected content_blocked after word update, got %q", code)
	}
}

func TestCoordinator_AdminUpdateRateLimit(t *testing.T) {
	c := newTestCoordinator(nil)
	a := connect(c, "a")
	b := connect(c, "b")
	sid := pair(t, c, a, b, "a", "b")
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	c.AdminUpdateRateLimit("adm", 2)

	c.SendMessage("a", sid, "one")
	c.SendMessage("a", sid, "two")
	c.SendMessage("a", sid, "three")

	if code := a.lastErrorCode(); code != "rate_limited" {
		t.Errorf("Third message should be rate limited, got %q", code)
	}
	if got := b.count(EventReceiveMessage); got != 2 {
		t.Errorf("Partner should have received 2 messages, got %d", got)
	}
}

func TestCoordinator_AdminUpdateRateLimitRejectsNonPositive(t *testing.T) {
	c := newTestCoordinator(nil)
	adm := connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	c.AdminUpdateRateLimit("adm", 0)
	if code := adm.lastErrorCode(); code != "invalid_argument" {
		t.Errorf("Non-positive limit should be rejected as invalid_argument, got %q", code)
	}

	c.AdminUpdateRateLimit("adm", -5)
	if code := adm.lastErrorCode(); code != "invalid_argument" {
		t.Errorf("Negative limit should be rejected as invalid_argument, got %q", code)
	}
}

// A settings write that finishes after a newer one must not win: writes are
// versioned and a stale snapshot is dropped once a newer version is on disk.
func TestCoordinator_StaleSettingsWriteDropped(t *testing.T) {
	repo := &recordingRepo{}
	c := NewCoordinator(Options{
		Authenticate: func(token string) bool { return token == "secret" },
		Settings:     repo,
	})

	c.persistSettings(2, &store.Settings{RateLimit: 99})
	c.persistSettings(1, &store.Settings{RateLimit: 10})

	if repo.saveCalls() != 1 {
		t.Fatalf("Stale snapshot should be dropped without a write, got %d writes", repo.saveCalls())
	}
	if got := repo.lastSaved().RateLimit; got != 99 {
		t.Errorf("Newest settings should survive, got rate limit %d", got)
	}
}

type recordingRepo struct {
	mu    sync.Mutex
	calls int
	last  *store.Settings
}

func (r *recordingRepo) LoadSettings(context.Context) (*store.Settings, error) { return nil, nil }

func (r *recordingRepo) SaveSettings(_ context.Context, s *store.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = s
	return nil
}

func (r *recordingRepo) Ping(context.Context) error { return nil }
func (r *recordingRepo) Close() error               { return nil }

func (r *recordingRepo) saveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *recordingRepo) lastSaved() *store.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func TestCoordinator_MaintenanceMode(t *testing.T) {
	c := newTestCoordinator(nil)
	guest := connect(c, "guest")
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	c.AdminToggleMaintenance("adm")

	c.FindPartner("guest")
	if code := guest.lastErrorCode(); code != "maintenance_active" {
		t.Errorf("Expected maintenance_active, got %q", code)
	}

	c.AdminToggleMaintenance("adm")
	c.FindPartner("guest")
	if _, ok := guest.last(EventWaiting); !ok {
		t.Error("Find-partner should work again after maintenance ends")
	}
}

func TestCoordinator_DisconnectDeregistersAdmin(t *testing.T) {
	c := newTestCoordinator(nil)
	connect(c, "adm")
	c.AdminAuthenticate("adm", "secret")

	c.Disconnect("adm")

	found := false
	for _, e := range c.Activity() {
		if e.Category == "admin" && strings.Contains(e.Message, "logged out") {
			found = true
		}
	}
	if !found {
		t.Error("Admin logout should be recorded in the activity feed")
	}
	if c.Stats().ActiveUsers != 0 {
		t.Error("Admin should be fully deregistered")
	}
}

func TestCoordinator_UnknownIDsAreSafeNoOps(t *testing.T) {
	c := newTestCoordinator(nil)

	c.FindPartner("ghost")
	c.SendMessage("ghost", "sid", "hello")
	c.EndChat("ghost")
	c.JoinRoom("ghost")
	c.LeaveRoom("ghost")
	c.SendRoomMessage("ghost", "hello")
	c.Disconnect("ghost")

	stats := c.Stats()
	if stats.ActiveUsers != 0 || stats.ActiveSessions != 0 || stats.RoomUsers != 0 {
		t.Errorf("Unknown ids must leave no trace, got %+v", stats)
	}
}
