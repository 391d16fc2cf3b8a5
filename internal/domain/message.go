package domain

import (
	"time"
)

// PublicMessage is one entry in the shared room's capped history. Text is
// stored already filtered.
type PublicMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActivityEntry is one line of the admin-facing activity feed.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
}
