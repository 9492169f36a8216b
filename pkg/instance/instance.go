// Package instance enforces single-instance ownership of the account via a
// lock file. Two processes driving the same WhatsApp session get both of
// them logged out, so acquisition gates startup.
package instance

import (
	"encoding/json"
	"os"
	"syscall"
	"time"
)

// DefaultStaleAfter is how old a lock record may be before it is treated as
// abandoned by a crashed process.
const DefaultStaleAfter = 5 * time.Minute

// LockRecord is the persisted lock file content.
type LockRecord struct {
	PID       int       `json:"pid"`
	Timestamp int64     `json:"timestamp"` // unix millis
	StartedAt time.Time `json:"startedAt"`
}

// Guard manages the instance lock file.
type Guard struct {
	lockFile   string
	staleAfter time.Duration
	now        func() time.Time
}

// NewGuard creates a guard for the given lock file path.
func NewGuard(lockFile string) *Guard {
	return &Guard{
		lockFile:   lockFile,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// Acquire attempts to take ownership of the account. It returns true when
// the lock was taken, false when another live instance holds it.
func (g *Guard) Acquire() (bool, error) {
	if rec, err := g.read(); err == nil {
		age := g.now().Sub(time.UnixMilli(rec.Timestamp))
		if age <= g.staleAfter && isProcessRunning(rec.PID) {
			return false, nil
		}
		// Stale or dead holder: discard and take over.
		_ = os.Remove(g.lockFile)
	} else if !os.IsNotExist(err) {
		// Unreadable lock file is treated like a stale one.
		_ = os.Remove(g.lockFile)
	}

	return true, g.write()
}

// Release deletes the lock record unconditionally. It must run on every
// shutdown path.
func (g *Guard) Release() {
	_ = os.Remove(g.lockFile)
}

// Held reports whether the lock file currently exists.
func (g *Guard) Held() bool {
	_, err := os.Stat(g.lockFile)
	return err == nil
}

func (g *Guard) read() (*LockRecord, error) {
	data, err := os.ReadFile(g.lockFile)
	if err != nil {
		return nil, err
	}
	var rec LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (g *Guard) write() error {
	rec := LockRecord{
		PID:       os.Getpid(),
		Timestamp: g.now().UnixMilli(),
		StartedAt: g.now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.lockFile, data, 0o600)
}

// isProcessRunning tries to detect if a PID refers to a running process.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
