package chat

import (
	"sync"
	"time"

	"github.com/whibo/whibo-server/internal/domain"
)

// DefaultActivityCapacity bounds the admin activity feed.
const DefaultActivityCapacity = 100

// ActivityLog is a bounded, newest-first ring of recent system events,
// consumed by the admin view. Oldest entries are evicted once the capacity
// is reached.
type ActivityLog struct {
	mu       sync.RWMutex
	entries  []domain.ActivityEntry
	capacity int
}

// NewActivityLog creates an activity log holding at most capacity entries.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &ActivityLog{
		entries:  make([]domain.ActivityEntry, 0, capacity),
		capacity: capacity,
	}
}

// Record appends an entry at the front of the feed, evicting the oldest
// entry if the log is full.
func (l *ActivityLog) Record(category, message string) domain.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := domain.ActivityEntry{
		Timestamp: time.Now(),
		Message:   message,
		Category:  category,
	}

	l.entries = append([]domain.ActivityEntry{entry}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	return entry
}

// Entries returns a newest-first copy of the feed.
func (l *ActivityLog) Entries() []domain.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
