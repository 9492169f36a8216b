// Package state holds the process-wide runtime state shared between the
// dispatch pipeline and the admin control plane. Every accessor takes the
// lock for the duration of one field update, so concurrent mutation
// interleaves per call without partial writes.
package state

import (
	"sync"
	"time"

	"wabot/pkg/session"
)

// UserRecord tracks one sender seen by the bot. Records are created on
// first contact and never deleted during the process lifetime.
type UserRecord struct {
	ID           string    `json:"id"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	MessageCount int64     `json:"messageCount"`
}

// Stats is a point-in-time snapshot of the command counters.
type Stats struct {
	TotalCommands int64     `json:"totalCommands"`
	CommandsToday int64     `json:"commandsToday"`
	StartTime     time.Time `json:"startTime"`
}

// State is the shared runtime state. A single instance lives for the whole
// process.
type State struct {
	mu            sync.RWMutex
	active        bool
	users         map[string]*UserRecord
	totalCommands int64
	commandsToday int64
	startTime     time.Time
	sess          session.Session
	activity      *ActivityLog
	now           func() time.Time
}

// New creates runtime state with the active flag set.
func New() *State {
	now := time.Now
	return &State{
		active:    true,
		users:     make(map[string]*UserRecord),
		startTime: now(),
		activity:  NewActivityLog(activityCapacity),
		now:       now,
	}
}

// IsActive reports the active flag.
func (s *State) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive sets the active flag.
func (s *State) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// TrackMessage upserts the sender's record: created on first sight,
// lastSeen refreshed and the message counter bumped on every call.
func (s *State) TrackMessage(sender string) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[sender]
	if !ok {
		rec = &UserRecord{
			ID:        sender,
			FirstSeen: s.now(),
		}
		s.users[sender] = rec
	}
	rec.LastSeen = s.now()
	rec.MessageCount++
	return *rec
}

// SeedUser restores a record loaded from persistent storage. Existing
// in-memory records win; the registry is the runtime source of truth.
func (s *State) SeedUser(rec UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[rec.ID]; ok {
		return
	}
	copied := rec
	s.users[rec.ID] = &copied
}

// CountCommand increments both command counters.
func (s *State) CountCommand() {
	s.mu.Lock()
	s.totalCommands++
	s.commandsToday++
	s.mu.Unlock()
}

// RestoreTotal seeds the lifetime command counter from persistent storage.
// The daily counter always starts at zero.
func (s *State) RestoreTotal(total int64) {
	s.mu.Lock()
	s.totalCommands = total
	s.mu.Unlock()
}

// ResetDaily zeroes the daily counter. The total counter is unaffected.
func (s *State) ResetDaily() {
	s.mu.Lock()
	s.commandsToday = 0
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *State) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalCommands: s.totalCommands,
		CommandsToday: s.commandsToday,
		StartTime:     s.startTime,
	}
}

// Uptime returns seconds since startup.
func (s *State) Uptime() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.now().Sub(s.startTime).Seconds())
}

// UserCount returns the registry size.
func (s *State) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Users returns a copy of all user records.
func (s *State) Users() []UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		users = append(users, *rec)
	}
	return users
}

// UserIDs returns a snapshot of the registry keys. Broadcast iterates this
// snapshot so records added mid-broadcast are simply not included.
func (s *State) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids
}

// SetSession publishes the live session handle; nil clears it.
func (s *State) SetSession(sess session.Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

// Session returns the live session handle, or nil when disconnected.
func (s *State) Session() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

// Activity returns the activity log.
func (s *State) Activity() *ActivityLog {
	return s.activity
}
