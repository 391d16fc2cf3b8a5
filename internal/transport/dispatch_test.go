package transport

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/whibo/whibo-server/internal/chat"
)

type fakeSink struct {
	mu     sync.Mutex
	events []string
	closed bool
}

func (f *fakeSink) Send(event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) Close(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSink) saw(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func newTestSetup() (*Handler, *chat.Coordinator) {
	coord := chat.NewCoordinator(chat.Options{
		Authenticate: func(token string) bool { return token == "secret" },
	})
	return NewHandler(coord, "", true), coord
}

func env(t *testing.T, event string, data any) envelope {
	t.Helper()
	if data == nil {
		return envelope{Event: event}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return envelope{Event: event, Data: raw}
}

func TestDispatch_FindPartner(t *testing.T) {
	h, coord := newTestSetup()
	sink := &fakeSink{}
	coord.Connect("p1", sink)

	h.dispatch("p1", env(t, actionFindPartner, nil))

	if !sink.saw(chat.EventWaiting) {
		t.Error("find-partner with an empty pool should produce waiting-for-partner")
	}
}

func TestDispatch_PublicRoomFlow(t *testing.T) {
	h, coord := newTestSetup()
	sink := &fakeSink{}
	coord.Connect("p1", sink)

	h.dispatch("p1", env(t, actionJoinPublicRoom, nil))
	if !sink.saw(chat.EventPublicRoomJoined) {
		t.Fatal("join-public-room should produce public-room-joined")
	}

	h.dispatch("p1", env(t, actionSendPublicMessage, map[string]string{"message": "hello"}))
	if !sink.saw(chat.EventPublicMessage) {
		t.Error("send-public-message should broadcast to the room")
	}
}

func TestDispatch_AdminAuth(t *testing.T) {
	h, coord := newTestSetup()
	sink := &fakeSink{}
	coord.Connect("p1", sink)

	h.dispatch("p1", env(t, actionAdminAuth, map[string]string{"token": "wrong"}))
	if !sink.saw(chat.EventAdminAuthFailed) {
		t.Error("Bad token should produce admin-auth-failed")
	}

	h.dispatch("p1", env(t, actionAdminAuth, map[string]string{"token": "secret"}))
	if !sink.saw(chat.EventAdminAuthenticated) {
		t.Error("Valid token should produce admin-authenticated")
	}
}

func TestDispatch_MalformedPayloadIgnored(t *testing.T) {
	h, coord := newTestSetup()
	sink := &fakeSink{}
	coord.Connect("p1", sink)

	h.dispatch("p1", envelope{Event: actionSendMessage, Data: json.RawMessage(`"not an object"`)})
	h.dispatch("p1", envelope{Event: "no-such-action"})

	if sink.saw(chat.EventReceiveMessage) {
		t.Error("Malformed payload must not dispatch an action")
	}
}
