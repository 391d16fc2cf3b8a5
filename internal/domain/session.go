package domain

import (
	"time"
)

// Session is an active one-on-one chat between exactly two participants.
type Session struct {
	ID           string    `json:"id"`
	Users        [2]string `json:"users"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Contains returns true if the participant is one of the session's two users.
func (s *Session) Contains(participantID string) bool {
	return s.Users[0] == participantID || s.Users[1] == participantID
}

// PartnerOf returns the other participant in the session. The second return
// is false if the given participant is not part of the session.
func (s *Session) PartnerOf(participantID string) (string, bool) {
	switch participantID {
	case s.Users[0]:
		return s.Users[1], true
	case s.Users[1]:
		return s.Users[0], true
	default:
		return "", false
	}
}
