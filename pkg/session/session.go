// Package session defines the narrow surface the bot needs from the
// messaging-network client library. The real implementation lives in
// pkg/wa; tests substitute fakes.
package session

import (
	"context"
	"strings"
	"time"
)

// CloseReason classifies why a connection closed.
type CloseReason int

const (
	// ReasonUnknown covers transient network failures; recoverable.
	ReasonUnknown CloseReason = iota
	// ReasonBanned means the account was restricted by the network.
	ReasonBanned
	// ReasonReplaced means another connection took over the account.
	ReasonReplaced
	// ReasonLoggedOut means the credentials were revoked.
	ReasonLoggedOut
	// ReasonBadSession means the credential material is corrupted or
	// incompatible with the current client.
	ReasonBadSession
)

// String returns a human-readable reason name.
func (r CloseReason) String() string {
	switch r {
	case ReasonBanned:
		return "account banned"
	case ReasonReplaced:
		return "connection replaced"
	case ReasonLoggedOut:
		return "logged out"
	case ReasonBadSession:
		return "bad session"
	default:
		return "connection lost"
	}
}

// Terminal reports whether the reason permits no reconnect attempt.
func (r CloseReason) Terminal() bool {
	switch r {
	case ReasonBanned, ReasonReplaced, ReasonLoggedOut, ReasonBadSession:
		return true
	default:
		return false
	}
}

// Event is one of ConnectedEvent, ClosedEvent or MessageEvent.
type Event any

// ConnectedEvent signals the session reached the open state.
type ConnectedEvent struct {
	OwnID string
}

// ClosedEvent signals the session closed.
type ClosedEvent struct {
	Reason CloseReason
	Err    error
}

// MessageEvent is one inbound message, already decoded by the library but
// otherwise unprocessed.
type MessageEvent struct {
	ID           string
	Chat         string
	Participant  string // set for group messages
	FromMe       bool
	IsGroup      bool
	Live         bool // false for historical backfill deliveries
	HasContent   bool
	Text         string
	ExtendedText string
	PushName     string
	Timestamp    time.Time
}

// Session is a live or connectable account session. Connect may be called
// again after a close to re-dial with the same credentials. Close releases
// the credential store and every other held resource; the session is
// unusable afterwards.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	Close() error
	OwnID() string
	Events() <-chan Event

	SendText(ctx context.Context, to, text string) error
	SendQuotedText(ctx context.Context, to, text string, quoted *MessageEvent) error
	MarkRead(ctx context.Context, msg *MessageEvent) error
}

// Sender is the subset of Session used by message consumers.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendQuotedText(ctx context.Context, to, text string, quoted *MessageEvent) error
}

// NormalizeID truncates a device-suffixed identity ("123:4@server") to its
// base form ("123@server"). IDs without a suffix pass through unchanged.
func NormalizeID(id string) string {
	colon := strings.IndexByte(id, ':')
	if colon < 0 {
		return id
	}
	at := strings.IndexByte(id, '@')
	if at < colon {
		return id
	}
	if at < 0 {
		return id[:colon]
	}
	return id[:colon] + id[at:]
}
