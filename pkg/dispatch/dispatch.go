// Package dispatch normalizes inbound message events, tracks per-sender
// state, parses commands and invokes handlers from the command table.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"wabot/pkg/commands"
	"wabot/pkg/logger"
	"wabot/pkg/session"
	"wabot/pkg/state"
)

// Conn is the slice of the session the pipeline needs per message.
type Conn interface {
	session.Sender
	MarkRead(ctx context.Context, msg *session.MessageEvent) error
	OwnID() string
}

// Dispatcher consumes message events and drives the command table.
type Dispatcher struct {
	state  *state.State
	table  *commands.Table
	prefix string
	admin  string // normalized owner identity; empty disables the inactive bypass
	log    *logger.Logger
}

// New creates a dispatcher. adminID is the owner identity that bypasses the
// inactive flag; it may be empty.
func New(st *state.State, table *commands.Table, prefix, adminID string) *Dispatcher {
	return &Dispatcher{
		state:  st,
		table:  table,
		prefix: prefix,
		admin:  session.NormalizeID(adminID),
		log:    logger.Get().Component("dispatch"),
	}
}

// HandleMessage runs the full pipeline for one inbound event. It never
// returns an error: every failure is contained so one message cannot take
// down the pipeline or block the next one.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn Conn, evt *session.MessageEvent) {
	// Historical backfill deliveries and content-less events are ignored.
	if !evt.Live || !evt.HasContent {
		return
	}

	from := evt.Chat
	isGroup := evt.IsGroup

	sender := d.resolveSender(conn, evt)

	if d.table.AutoReadEnabled() && !evt.FromMe {
		if err := conn.MarkRead(ctx, evt); err != nil {
			d.log.WarnWith("auto-read failed", "chat", from, "error", err)
		}
	}

	text := evt.Text
	if text == "" {
		text = evt.ExtendedText
	}

	// While inactive, everything except the admin identity is dropped
	// before user tracking. Matches the source behaviour.
	if !d.state.IsActive() && sender != d.admin {
		return
	}

	d.state.TrackMessage(sender)

	if !strings.HasPrefix(text, d.prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(text, d.prefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	if d.table.PrivateModeEnabled() {
		if !d.table.IsOwner(sender) && !d.table.IsSudo(sender) {
			// Silently skipped: no error message, no stats increment.
			return
		}
	}

	cmd, ok := d.table.Lookup(name)
	if !ok {
		// Unknown commands are ignored, not an error.
		return
	}

	d.state.CountCommand()
	d.state.Activity().Record(state.ActivityCommand, fmt.Sprintf("%s%s from %s", d.prefix, name, sender))

	d.invoke(ctx, conn, cmd, evt, args, &commands.Context{
		From:    from,
		Sender:  sender,
		IsGroup: isGroup,
		Prefix:  d.prefix,
	})
}

// resolveSender picks the sender identity per conversation class and strips
// any device suffix.
func (d *Dispatcher) resolveSender(conn Conn, evt *session.MessageEvent) string {
	var sender string
	switch {
	case evt.IsGroup:
		sender = evt.Participant
		if sender == "" {
			sender = evt.Chat
		}
	case evt.FromMe:
		sender = conn.OwnID()
	default:
		sender = evt.Chat
	}
	return session.NormalizeID(sender)
}

// invoke runs one handler with panic and error containment. Failures are
// logged and surfaced to the originating conversation best-effort.
func (d *Dispatcher) invoke(ctx context.Context, conn Conn, cmd *commands.Command, evt *session.MessageEvent, args []string, cmdCtx *commands.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.reportFailure(ctx, conn, cmd.Name, evt, cmdCtx, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := cmd.Handler(ctx, conn, evt, args, cmdCtx); err != nil {
		d.reportFailure(ctx, conn, cmd.Name, evt, cmdCtx, err)
	}
}

func (d *Dispatcher) reportFailure(ctx context.Context, conn Conn, name string, evt *session.MessageEvent, cmdCtx *commands.Context, err error) {
	d.log.ErrorWithErr("command failed", err, "command", name, "sender", cmdCtx.Sender)
	notice := fmt.Sprintf("Error executing command: %v", err)
	if sendErr := conn.SendQuotedText(ctx, cmdCtx.From, notice, evt); sendErr != nil {
		// A failing notice is itself swallowed.
		d.log.WarnWith("failed to send error notice", "chat", cmdCtx.From, "error", sendErr)
	}
}
