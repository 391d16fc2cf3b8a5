package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/whibo/whibo-server/internal/domain"
)

// Registry maps connected participant ids to their anonymous profiles.
// Entries live exactly as long as the underlying connection.
type Registry struct {
	mu    sync.RWMutex
	users map[string]domain.Participant
}

// NewRegistry creates an empty participant registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]domain.Participant)}
}

// Register adds a participant with the guest role.
func (r *Registry) Register(id, name string) domain.Participant {
	p := domain.Participant{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now(),
		Role:     domain.RoleGuest,
	}

	r.mu.Lock()
	r.users[id] = p
	r.mu.Unlock()
	return p
}

// Deregister removes a participant. Unknown ids are a no-op.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
}

// Get returns the participant's profile, if connected.
func (r *Registry) Get(id string) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.users[id]
	return p, ok
}

// SetRole updates a participant's role. Unknown ids are a no-op.
func (r *Registry) SetRole(id string, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.users[id]; ok {
		p.Role = role
		r.users[id] = p
	}
}

// List returns all connected participants ordered by join time.
func (r *Registry) List() []domain.Participant {
	r.mu.RLock()
	out := make([]domain.Participant, 0, len(r.users))
	for _, p := range r.users {
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

// Count returns the number of connected participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
