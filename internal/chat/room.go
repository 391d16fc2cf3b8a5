package chat

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/whibo/whibo-server/internal/domain"
)

const (
	// MaxMessageLength caps both 1:1 and public-room message text.
	MaxMessageLength = 500

	// maxRoomHistory caps the public room's retained message history.
	maxRoomHistory = 1000

	// joinReplayLimit is how many recent messages a joiner gets replayed.
	joinReplayLimit = 50
)

// Room is the shared public chat room: a membership set plus a capped FIFO
// history of recent messages. Membership is independent of 1:1 session state.
type Room struct {
	mu      sync.RWMutex
	filter  *Filter
	members map[string]domain.Participant
	history []domain.PublicMessage
}

// NewRoom creates an empty public room using the given content filter.
func NewRoom(filter *Filter) *Room {
	return &Room{
		filter:  filter,
		members: make(map[string]domain.Participant),
	}
}

// Join adds the participant to the room and returns the most recent window
// of history, oldest first, for replay to the joiner.
func (r *Room) Join(p domain.Participant) []domain.PublicMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[p.ID] = p

	start := 0
	if len(r.history) > joinReplayLimit {
		start = len(r.history) - joinReplayLimit
	}
	replay := make([]domain.PublicMessage, len(r.history)-start)
	copy(replay, r.history[start:])
	return replay
}

// Leave removes the participant from the room. Idempotent.
func (r *Room) Leave(participantID string) {
	r.mu.Lock()
	delete(r.members, participantID)
	r.mu.Unlock()
}

// Contains reports room membership.
func (r *Room) Contains(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[participantID]
	return ok
}

// Post validates, filters, and stores a new public message, returning the
// stored message for broadcast. Empty or over-length text is rejected with
// ErrInvalidMessage; text containing banned content is rejected with
// ErrContentBlocked and never stored.
func (r *Room) Post(sender domain.Participant, rawText string) (domain.PublicMessage, error) {
	text := strings.TrimSpace(rawText)
	if text == "" || utf8.RuneCountInString(text) > MaxMessageLength {
		return domain.PublicMessage{}, ErrInvalidMessage
	}
	if r.filter.ContainsBanned(text) {
		return domain.PublicMessage{}, ErrContentBlocked
	}

	msg := domain.PublicMessage{
		ID:         uuid.NewString(),
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Text:       r.filter.Redact(text),
		Timestamp:  time.Now(),
	}

	r.mu.Lock()
	r.history = append(r.history, msg)
	if len(r.history) > maxRoomHistory {
		r.history = r.history[len(r.history)-maxRoomHistory:]
	}
	r.mu.Unlock()

	return msg, nil
}

// Members returns the current membership ordered by join time, for the
// initial snapshot and for update broadcasts after any join or leave.
func (r *Room) Members() []domain.Participant {
	r.mu.RLock()
	out := make([]domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// MemberIDs returns the ids of everyone currently in the room.
func (r *Room) MemberIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Size returns the current membership count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
