package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// activityCapacity bounds the in-memory activity ring.
const activityCapacity = 200

// ActivityType labels an activity entry.
type ActivityType string

const (
	ActivityInfo       ActivityType = "info"
	ActivityCommand    ActivityType = "command"
	ActivityConnection ActivityType = "connection"
	ActivityToggle     ActivityType = "toggle"
	ActivityBroadcast  ActivityType = "broadcast"
)

// ActivityEntry is one recorded event.
type ActivityEntry struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// ActivityLog is a bounded ring of recent activity with fan-out to live
// subscribers (the admin websocket feed).
type ActivityLog struct {
	mu      sync.RWMutex
	entries []ActivityEntry
	cap     int
	subs    map[int]chan ActivityEntry
	nextSub int
}

// NewActivityLog creates a log bounded to capacity entries.
func NewActivityLog(capacity int) *ActivityLog {
	return &ActivityLog{
		cap:  capacity,
		subs: make(map[int]chan ActivityEntry),
	}
}

// Record appends an entry and notifies subscribers. Slow subscribers miss
// entries rather than block the caller.
func (a *ActivityLog) Record(typ ActivityType, message string) {
	entry := ActivityEntry{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.cap {
		a.entries = a.entries[len(a.entries)-a.cap:]
	}
	for _, ch := range a.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	a.mu.Unlock()
}

// Recent returns up to limit entries, newest last. limit <= 0 returns all.
func (a *ActivityLog) Recent(limit int) []ActivityEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ActivityEntry, n)
	copy(out, a.entries[len(a.entries)-n:])
	return out
}

// Subscribe registers a live feed. The returned cancel func must be called
// when the subscriber goes away.
func (a *ActivityLog) Subscribe() (<-chan ActivityEntry, func()) {
	ch := make(chan ActivityEntry, 32)

	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}
