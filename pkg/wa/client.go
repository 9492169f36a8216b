// Package wa adapts the whatsmeow client library to the session interface
// the rest of the bot consumes.
package wa

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"wabot/pkg/errors"
	"wabot/pkg/logger"
	"wabot/pkg/session"
)

// eventBuffer bounds the adapter's outbound event channel. The bot loop
// drains it continuously; message overflow drops with a warning rather
// than blocking the library's handler goroutine. Close events are exempt
// from dropping, see emit.
const eventBuffer = 128

// Client implements session.Session on top of a whatsmeow client backed
// by a sqlite credential store under the auth directory.
type Client struct {
	wm     *whatsmeow.Client
	db     *sql.DB
	events chan session.Event
	log    *logger.Logger

	// closeSent guards the one guaranteed ClosedEvent delivery.
	closeSent atomic.Bool
}

var _ session.Session = (*Client)(nil)

// NewClient opens the credential store under authDir and prepares a
// client for the stored device. The store must already hold paired
// credentials; this process never runs interactive pairing.
func NewClient(ctx context.Context, authDir string) (*Client, error) {
	log := logger.Get().Component("wa")

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(authDir, "session.db"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", newWALogger(log))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read device: %w", err)
	}
	if device.ID == nil {
		db.Close()
		return nil, fmt.Errorf("credential store holds no paired device: %w", errors.ErrSessionNotFound)
	}

	c := &Client{
		wm:     whatsmeow.NewClient(device, newWALogger(log)),
		db:     db,
		events: make(chan session.Event, eventBuffer),
		log:    log,
	}
	// The bot's state machine owns reconnect policy exclusively.
	c.wm.EnableAutoReconnect = false
	c.wm.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect dials the network. The result of the dial surfaces on the
// event channel as a ConnectedEvent or ClosedEvent.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect tears the socket down without revoking credentials.
func (c *Client) Disconnect() {
	c.wm.Disconnect()
}

// Close drops the socket and releases the credential store.
func (c *Client) Close() error {
	c.wm.Disconnect()
	return c.db.Close()
}

// OwnID returns the device-suffixed account identity, or "" before the
// store is loaded.
func (c *Client) OwnID() string {
	if c.wm.Store.ID == nil {
		return ""
	}
	return c.wm.Store.ID.String()
}

// Events returns the adapter's event stream.
func (c *Client) Events() <-chan session.Event {
	return c.events
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", to, err)
	}
	_, err = c.wm.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

// SendQuotedText sends text quoting an earlier message in the same chat.
func (c *Client) SendQuotedText(ctx context.Context, to, text string, quoted *session.MessageEvent) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", to, err)
	}

	participant := quoted.Participant
	if participant == "" {
		participant = quoted.Chat
	}
	quotedText := quoted.Text
	if quotedText == "" {
		quotedText = quoted.ExtendedText
	}

	_, err = c.wm.SendMessage(ctx, jid, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(quoted.ID),
				Participant:   proto.String(participant),
				QuotedMessage: &waE2E.Message{Conversation: proto.String(quotedText)},
			},
		},
	})
	return err
}

// MarkRead acknowledges a message as read.
func (c *Client) MarkRead(ctx context.Context, msg *session.MessageEvent) error {
	chat, err := types.ParseJID(msg.Chat)
	if err != nil {
		return fmt.Errorf("parse chat %q: %w", msg.Chat, err)
	}
	sender := chat
	if msg.Participant != "" {
		sender, err = types.ParseJID(msg.Participant)
		if err != nil {
			return fmt.Errorf("parse participant %q: %w", msg.Participant, err)
		}
	}
	return c.wm.MarkRead(ctx, []types.MessageID{msg.ID}, time.Now(), chat, sender)
}

func (c *Client) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		if err := c.wm.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			c.log.WarnWith("presence announce failed", "error", err)
		}
		c.emit(session.ConnectedEvent{OwnID: c.OwnID()})
	case *events.Message:
		c.emit(c.mapMessage(e))
	case *events.LoggedOut:
		c.emit(session.ClosedEvent{Reason: session.ReasonLoggedOut})
	case *events.StreamReplaced:
		c.emit(session.ClosedEvent{Reason: session.ReasonReplaced})
	case *events.TemporaryBan:
		c.emit(session.ClosedEvent{Reason: session.ReasonBanned, Err: fmt.Errorf("temporary ban: %s", e.String())})
	case *events.ClientOutdated:
		c.emit(session.ClosedEvent{Reason: session.ReasonBadSession})
	case *events.ConnectFailure:
		c.emit(session.ClosedEvent{Reason: classifyConnectFailure(e), Err: fmt.Errorf("connect failure: %d", int(e.Reason))})
	case *events.Disconnected:
		c.emit(session.ClosedEvent{Reason: session.ReasonUnknown})
	}
}

// mapMessage flattens a library message into the dispatch shape. History
// sync deliveries are never forwarded, so every mapped message is live.
func (c *Client) mapMessage(e *events.Message) session.MessageEvent {
	text := e.Message.GetConversation()
	extended := e.Message.GetExtendedTextMessage().GetText()

	return session.MessageEvent{
		ID:           string(e.Info.ID),
		Chat:         e.Info.Chat.String(),
		Participant:  e.Info.Sender.String(),
		FromMe:       e.Info.IsFromMe,
		IsGroup:      e.Info.IsGroup,
		Live:         true,
		HasContent:   e.Message != nil,
		Text:         text,
		ExtendedText: extended,
		PushName:     e.Info.PushName,
		Timestamp:    e.Info.Timestamp,
	}
}

func classifyConnectFailure(e *events.ConnectFailure) session.CloseReason {
	switch e.Reason {
	case events.ConnectFailureLoggedOut:
		return session.ReasonLoggedOut
	case events.ConnectFailureTempBanned:
		return session.ReasonBanned
	case events.ConnectFailureClientOutdated:
		return session.ReasonBadSession
	default:
		return session.ReasonUnknown
	}
}

// emit forwards an event to the consumer. Message and connect events may
// be dropped under backlog, but the state machine must observe every
// close, so the first ClosedEvent is delivered blocking. Later closes for
// the same outage are coalesced into it.
func (c *Client) emit(evt session.Event) {
	if closed, ok := evt.(session.ClosedEvent); ok {
		if c.closeSent.CompareAndSwap(false, true) {
			c.events <- closed
		}
		return
	}

	select {
	case c.events <- evt:
	default:
		c.log.WarnWith("event buffer full, dropping event", "event", fmt.Sprintf("%T", evt))
	}
}
