// Package domain contains core domain types for the WhibO chat server.
package domain

import (
	"time"
)

// Role distinguishes ordinary visitors from authenticated admin observers.
type Role string

const (
	RoleGuest Role = "guest"
	RoleAdmin Role = "admin"
)

// Participant represents one connected visitor. Participants are created on
// connect and destroyed on disconnect; they are never persisted.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	Role     Role      `json:"role"`
}

// IsAdmin returns true if the participant has authenticated as an admin.
func (p *Participant) IsAdmin() bool {
	return p.Role == RoleAdmin
}
