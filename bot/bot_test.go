package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/dispatch"
	"wabot/pkg/logger"
	"wabot/pkg/session"
	"wabot/pkg/state"
)

// scriptedSession replays a fixed event sequence.
type scriptedSession struct {
	events chan session.Event
	sent   []string
	closes int
}

func newScriptedSession(events ...session.Event) *scriptedSession {
	ch := make(chan session.Event, len(events))
	for _, evt := range events {
		ch <- evt
	}
	return &scriptedSession{events: ch}
}

func (s *scriptedSession) Connect(ctx context.Context) error { return nil }
func (s *scriptedSession) Disconnect()                       {}

func (s *scriptedSession) Close() error {
	s.closes++
	return nil
}
func (s *scriptedSession) OwnID() string                     { return "bot@s.whatsapp.net" }
func (s *scriptedSession) Events() <-chan session.Event      { return s.events }

func (s *scriptedSession) SendText(ctx context.Context, to, text string) error {
	s.sent = append(s.sent, to+"|"+text)
	return nil
}

func (s *scriptedSession) SendQuotedText(ctx context.Context, to, text string, quoted *session.MessageEvent) error {
	return s.SendText(ctx, to, text)
}

func (s *scriptedSession) MarkRead(ctx context.Context, msg *session.MessageEvent) error {
	return nil
}

type memStore struct {
	users map[string]state.UserRecord
	total int64
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]state.UserRecord)}
}

func (m *memStore) SaveUser(rec state.UserRecord) error {
	m.users[rec.ID] = rec
	return nil
}

func (m *memStore) SaveUsers(recs []state.UserRecord) error {
	for _, rec := range recs {
		m.users[rec.ID] = rec
	}
	return nil
}

func (m *memStore) GetAllUsers() ([]state.UserRecord, error) {
	out := make([]state.UserRecord, 0, len(m.users))
	for _, rec := range m.users {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) SaveTotalCommands(total int64) error {
	m.total = total
	return nil
}

func (m *memStore) LoadTotalCommands() (int64, error) { return m.total, nil }
func (m *memStore) Close() error                      { return nil }

// userFailStore rejects user writes while accepting counter writes.
type userFailStore struct {
	*memStore
}

func (u *userFailStore) SaveUsers(recs []state.UserRecord) error {
	return errors.New("users table unavailable")
}

func testBot(t *testing.T, connect connectFunc) *Bot {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Reconnect.DelaySeconds = 0

	st := state.New()
	return &Bot{
		cfg:     cfg,
		st:      st,
		table:   commands.NewTable(),
		disp:    dispatch.New(st, commands.NewTable(), ".", ""),
		store:   newMemStore(),
		connect: connect,
		log:     logger.Get().Component("bot"),
	}
}

func TestLoggedOutExitsCleanWithoutReconnect(t *testing.T) {
	dials := 0
	b := testBot(t, func(ctx context.Context) (session.Session, error) {
		dials++
		return newScriptedSession(
			session.ConnectedEvent{OwnID: "bot@s.whatsapp.net"},
			session.ClosedEvent{Reason: session.ReasonLoggedOut},
		), nil
	})

	code := b.runLoop(context.Background())
	if code != 0 {
		t.Errorf("expected exit 0 on logged out, got %d", code)
	}
	if dials != 1 {
		t.Errorf("expected no reconnect, dialed %d times", dials)
	}
}

func TestTerminalReasonsExitNonZero(t *testing.T) {
	for _, reason := range []session.CloseReason{
		session.ReasonBanned,
		session.ReasonReplaced,
		session.ReasonBadSession,
	} {
		dials := 0
		b := testBot(t, func(ctx context.Context) (session.Session, error) {
			dials++
			return newScriptedSession(session.ClosedEvent{Reason: reason}), nil
		})

		code := b.runLoop(context.Background())
		if code != 1 {
			t.Errorf("reason %v: expected exit 1, got %d", reason, code)
		}
		if dials != 1 {
			t.Errorf("reason %v: expected no reconnect, dialed %d times", reason, dials)
		}
	}
}

func TestRecoverableCloseReconnects(t *testing.T) {
	dials := 0
	b := testBot(t, func(ctx context.Context) (session.Session, error) {
		dials++
		if dials == 1 {
			return newScriptedSession(session.ClosedEvent{Reason: session.ReasonUnknown}), nil
		}
		return newScriptedSession(session.ClosedEvent{Reason: session.ReasonLoggedOut}), nil
	})

	code := b.runLoop(context.Background())
	if code != 0 {
		t.Errorf("expected exit 0, got %d", code)
	}
	if dials != 2 {
		t.Errorf("expected exactly one reconnect, dialed %d times", dials)
	}
}

func TestBurstOfClosesRedialsOnce(t *testing.T) {
	dials := 0
	b := testBot(t, func(ctx context.Context) (session.Session, error) {
		dials++
		if dials == 1 {
			// Transport layers can emit several close events for one
			// outage; only the first may schedule a redial.
			return newScriptedSession(
				session.ClosedEvent{Reason: session.ReasonUnknown},
				session.ClosedEvent{Reason: session.ReasonUnknown},
				session.ClosedEvent{Reason: session.ReasonUnknown},
			), nil
		}
		return newScriptedSession(session.ClosedEvent{Reason: session.ReasonLoggedOut}), nil
	})

	code := b.runLoop(context.Background())
	if code != 0 {
		t.Errorf("expected exit 0, got %d", code)
	}
	if dials != 2 {
		t.Errorf("expected one redial for the burst, dialed %d times", dials)
	}
}

func TestEverySessionClosedAcrossReconnects(t *testing.T) {
	var sessions []*scriptedSession
	b := testBot(t, func(ctx context.Context) (session.Session, error) {
		var sess *scriptedSession
		if len(sessions) < 2 {
			sess = newScriptedSession(session.ClosedEvent{Reason: session.ReasonUnknown})
		} else {
			sess = newScriptedSession(session.ClosedEvent{Reason: session.ReasonLoggedOut})
		}
		sessions = append(sessions, sess)
		return sess, nil
	})

	if code := b.runLoop(context.Background()); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 dials, got %d", len(sessions))
	}
	// Each cycle must release its session or store handles accumulate.
	for i, sess := range sessions {
		if sess.closes != 1 {
			t.Errorf("session %d: expected exactly one close, got %d", i, sess.closes)
		}
	}
}

func TestSignalCancellationExitsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := testBot(t, func(ctx context.Context) (session.Session, error) {
		// Session that never closes on its own.
		return newScriptedSession(session.ConnectedEvent{OwnID: "bot@s.whatsapp.net"}), nil
	})

	done := make(chan int, 1)
	go func() { done <- b.runLoop(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("expected exit 0 on signal, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop on cancellation")
	}
}

func TestMessagesFlowThroughDispatch(t *testing.T) {
	sess := newScriptedSession(
		session.ConnectedEvent{OwnID: "bot@s.whatsapp.net"},
		session.MessageEvent{
			Chat: "alice@s.whatsapp.net", Live: true, HasContent: true, Text: "hello",
		},
		session.MessageEvent{
			Chat: "bob@s.whatsapp.net", Live: true, HasContent: true, Text: "hi",
		},
		session.ClosedEvent{Reason: session.ReasonLoggedOut},
	)

	b := testBot(t, func(ctx context.Context) (session.Session, error) { return sess, nil })

	if code := b.runLoop(context.Background()); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if got := b.st.UserCount(); got != 2 {
		t.Errorf("expected 2 tracked users, got %d", got)
	}
}

func TestSchedulerFlushWritesCounterDespiteUserFailure(t *testing.T) {
	st := state.New()
	st.CountCommand()
	st.CountCommand()

	store := &userFailStore{memStore: newMemStore()}
	sched := newScheduler(st, store, "")

	sched.flush()

	if store.total != 2 {
		t.Errorf("expected counter flushed despite user write failure, got %d", store.total)
	}
}

func TestFlushPersistsStateOnExit(t *testing.T) {
	store := newMemStore()
	b := testBot(t, func(ctx context.Context) (session.Session, error) {
		return newScriptedSession(
			session.MessageEvent{
				Chat: "alice@s.whatsapp.net", Live: true, HasContent: true, Text: "hello",
			},
			session.ClosedEvent{Reason: session.ReasonLoggedOut},
		), nil
	})
	b.store = store

	if code := b.runLoop(context.Background()); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if _, ok := store.users["alice@s.whatsapp.net"]; !ok {
		t.Error("expected tracked user persisted on exit")
	}
}
