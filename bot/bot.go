// Package bot wires the subsystems together and owns the connection
// lifecycle: provision credentials and commands, open storage, start the
// control plane and schedules, then drive the session state machine until
// a terminal close or an OS signal.
package bot

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabot/pkg/api"
	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/dispatch"
	"wabot/pkg/errors"
	"wabot/pkg/instance"
	"wabot/pkg/logger"
	"wabot/pkg/provision"
	"wabot/pkg/session"
	"wabot/pkg/state"
	"wabot/pkg/storage"
	"wabot/pkg/wa"
)

const (
	lockFile     = ".bot.lock"
	identityFile = ".bot-config.json"
)

// connectFunc builds a fresh session from provisioned credentials. Tests
// substitute fakes.
type connectFunc func(ctx context.Context) (session.Session, error)

// Bot is the assembled process.
type Bot struct {
	cfg     *config.Config
	st      *state.State
	table   *commands.Table
	disp    *dispatch.Dispatcher
	store   storage.Store
	api     *api.Server
	sched   *scheduler
	connect connectFunc
	log     *logger.Logger
}

// Run executes the whole bot lifecycle and returns the process exit code.
func Run(cfg *config.Config) int {
	log := logger.Get().Component("bot")

	guard := instance.NewGuard(lockFile)
	ok, err := guard.Acquire()
	if err != nil {
		log.ErrorWithErr("instance lock check failed", err)
		return 1
	}
	if !ok {
		log.ErrorWithErr("another instance is already running", errors.ErrAlreadyRunning)
		return 1
	}
	defer guard.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBot(ctx, cfg)
	if err != nil {
		log.ErrorWithErr("startup failed", err)
		return 1
	}
	defer b.close()

	return b.runLoop(ctx)
}

func newBot(ctx context.Context, cfg *config.Config) (*Bot, error) {
	log := logger.Get().Component("bot")

	identity, err := config.LoadOrCreateIdentity(identityFile)
	if err != nil {
		return nil, err
	}
	log.InfoWith("bot identity", "botId", identity.BotID, "sessionId", cfg.SessionID)

	if cfg.OwnerNumber == "" {
		log.WarnWith("no owner number configured, owner-gated features disabled")
	}

	prov := provision.New(cfg.Repo.URL, cfg.Repo.Token)
	if err := prov.Credentials(ctx, cfg.SessionID, cfg.AuthDir); err != nil {
		return nil, err
	}
	table := prov.Commands(ctx, cfg.OwnerNumber)
	log.InfoWith("commands loaded", "count", table.Len())

	st := state.New()

	store, err := storage.NewStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	warmStart(st, store, log)

	b := &Bot{
		cfg:   cfg,
		st:    st,
		table: table,
		disp:  dispatch.New(st, table, cfg.Prefix, cfg.OwnerNumber),
		store: store,
		api:   api.NewServer(cfg.AdminAPIKey, st),
		log:   log,
	}
	b.connect = func(ctx context.Context) (session.Session, error) {
		return wa.NewClient(ctx, cfg.AuthDir)
	}
	b.sched = newScheduler(st, store, cfg.ExternalURL)

	b.api.Start(cfg.Port)
	b.sched.start()

	return b, nil
}

// warmStart seeds the in-memory registry from the persistent copy. A
// storage read failure degrades to a cold start.
func warmStart(st *state.State, store storage.Store, log *logger.Logger) {
	users, err := store.GetAllUsers()
	if err != nil {
		log.WarnWith("user warm start failed", "error", err)
	} else {
		for _, rec := range users {
			st.SeedUser(rec)
		}
	}

	total, err := store.LoadTotalCommands()
	if err != nil {
		log.WarnWith("counter warm start failed", "error", err)
		return
	}
	st.RestoreTotal(total)
	log.InfoWith("state restored", "users", st.UserCount(), "totalCommands", total)
}

// runLoop drives the connection state machine. Each iteration dials once
// and consumes events until the session closes; recoverable closes loop
// back after the configured delay, terminal closes map to an exit code.
// The sequential shape makes reconnect scheduling single-flight: a burst
// of close events produces at most one pending redial.
func (b *Bot) runLoop(ctx context.Context) int {
	delay := time.Duration(b.cfg.Reconnect.DelaySeconds) * time.Second

	for {
		sess, err := b.connect(ctx)
		if err != nil {
			if stderrors.Is(err, errors.ErrSessionNotFound) {
				b.log.ErrorWithErr("credentials unusable", err)
				return 1
			}
			b.log.ErrorWithErr("session setup failed", err)
			return 1
		}

		if err := sess.Connect(ctx); err != nil {
			b.log.ErrorWithErr("dial failed, retrying", err)
			if closeErr := sess.Close(); closeErr != nil {
				b.log.WarnWith("session close failed", "error", closeErr)
			}
			if !sleepCtx(ctx, delay) {
				return 0
			}
			continue
		}

		b.st.SetSession(sess)
		code, reconnect := b.consumeEvents(ctx, sess)
		b.st.SetSession(nil)
		// Close releases the credential store too; a bare Disconnect
		// would leak one store handle per reconnect cycle.
		if err := sess.Close(); err != nil {
			b.log.WarnWith("session close failed", "error", err)
		}

		if !reconnect {
			b.flush()
			return code
		}

		b.log.InfoWith("reconnecting", "delaySeconds", b.cfg.Reconnect.DelaySeconds)
		if !sleepCtx(ctx, delay) {
			b.flush()
			return 0
		}
	}
}

// consumeEvents processes one session's event stream until it closes.
// The second return reports whether a reconnect should follow.
func (b *Bot) consumeEvents(ctx context.Context, sess session.Session) (int, bool) {
	conn, _ := sess.(dispatch.Conn)

	for {
		select {
		case <-ctx.Done():
			b.log.InfoWith("shutdown signal received")
			return 0, false

		case evt, ok := <-sess.Events():
			if !ok {
				return 0, true
			}
			switch e := evt.(type) {
			case session.ConnectedEvent:
				b.log.InfoWith("connection open", "ownId", e.OwnID)
				b.st.Activity().Record(state.ActivityConnection, "connected as "+session.NormalizeID(e.OwnID))

			case session.MessageEvent:
				if conn != nil {
					b.disp.HandleMessage(ctx, conn, &e)
				}

			case session.ClosedEvent:
				return b.classifyClose(e)
			}
		}
	}
}

// classifyClose maps a close reason to (exitCode, reconnect). Revoked
// credentials are the expected end of life and exit clean; the other
// terminal reasons exit non-zero. Anything else reconnects.
func (b *Bot) classifyClose(e session.ClosedEvent) (int, bool) {
	b.st.Activity().Record(state.ActivityConnection, "connection closed: "+e.Reason.String())

	if !e.Reason.Terminal() {
		b.log.WarnWith("connection lost", "reason", e.Reason.String(), "error", e.Err)
		return 0, true
	}

	b.log.ErrorWith("terminal disconnect", "reason", e.Reason.String(), "error", e.Err)
	if e.Reason == session.ReasonLoggedOut {
		return 0, false
	}
	return 1, false
}

// flush writes the runtime registry and counters through to storage.
func (b *Bot) flush() {
	if err := b.store.SaveUsers(b.st.Users()); err != nil {
		b.log.WarnWith("user flush failed", "error", err)
	}
	if err := b.store.SaveTotalCommands(b.st.Snapshot().TotalCommands); err != nil {
		b.log.WarnWith("counter flush failed", "error", err)
	}
}

func (b *Bot) close() {
	b.sched.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.api.Shutdown(shutdownCtx); err != nil {
		b.log.WarnWith("control plane shutdown failed", "error", err)
	}

	if err := b.store.Close(); err != nil {
		b.log.WarnWith("storage close failed", "error", err)
	}
}

// sleepCtx waits for d or until ctx is cancelled. It reports false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
