package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wabot/pkg/session"
)

// HandlerFactory builds a handler from descriptor options. Factories run at
// load time so malformed options reject the module instead of failing at
// dispatch.
type HandlerFactory func(t *Table, opts map[string]string) (HandlerFunc, error)

// builtinFactories is the registry of handler implementations that command
// descriptors may reference by name.
var builtinFactories = map[string]HandlerFactory{
	"ping":     newPingHandler,
	"echo":     newEchoHandler,
	"static":   newStaticHandler,
	"uptime":   newUptimeHandler,
	"menu":     newMenuHandler,
	"autoread": newAutoReadHandler,
	"private":  newPrivateHandler,
	"sudo":     newSudoHandler,
}

// lookupFactory resolves a handler implementation by name.
func lookupFactory(name string) (HandlerFactory, bool) {
	f, ok := builtinFactories[strings.ToLower(name)]
	return f, ok
}

func newPingHandler(_ *Table, _ map[string]string) (HandlerFunc, error) {
	return func(ctx context.Context, send session.Sender, msg *session.MessageEvent, _ []string, cmdCtx *Context) error {
		started := time.Now()
		return send.SendQuotedText(ctx, cmdCtx.From, fmt.Sprintf("pong (%s)", time.Since(started).Round(time.Millisecond)), msg)
	}, nil
}

func newEchoHandler(_ *Table, _ map[string]string) (HandlerFunc, error) {
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, args []string, cmdCtx *Context) error {
		if len(args) == 0 {
			return nil
		}
		return send.SendText(ctx, cmdCtx.From, strings.Join(args, " "))
	}, nil
}

func newStaticHandler(_ *Table, opts map[string]string) (HandlerFunc, error) {
	reply := opts["reply"]
	if reply == "" {
		return nil, fmt.Errorf("static handler requires a reply option")
	}
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, _ []string, cmdCtx *Context) error {
		return send.SendText(ctx, cmdCtx.From, reply)
	}, nil
}

func newUptimeHandler(_ *Table, _ map[string]string) (HandlerFunc, error) {
	loaded := time.Now()
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, _ []string, cmdCtx *Context) error {
		return send.SendText(ctx, cmdCtx.From, fmt.Sprintf("up %s", time.Since(loaded).Round(time.Second)))
	}, nil
}

func newMenuHandler(t *Table, _ map[string]string) (HandlerFunc, error) {
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, _ []string, cmdCtx *Context) error {
		var b strings.Builder
		b.WriteString("*Commands*\n")
		for _, name := range t.Names() {
			b.WriteString(cmdCtx.Prefix)
			b.WriteString(name)
			b.WriteByte('\n')
		}
		return send.SendText(ctx, cmdCtx.From, b.String())
	}, nil
}

// newAutoReadHandler enables the auto-acknowledge capability and registers
// a command that reports it.
func newAutoReadHandler(t *Table, opts map[string]string) (HandlerFunc, error) {
	t.setAutoRead(opts["enabled"] == "true")
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, _ []string, cmdCtx *Context) error {
		status := "off"
		if t.AutoReadEnabled() {
			status = "on"
		}
		return send.SendText(ctx, cmdCtx.From, "auto-read is "+status)
	}, nil
}

// newPrivateHandler enables private mode. The owner option overrides the
// table's configured owner identity.
func newPrivateHandler(t *Table, opts map[string]string) (HandlerFunc, error) {
	t.setPrivateMode(opts["enabled"] == "true", opts["owner"])
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, _ []string, cmdCtx *Context) error {
		status := "off"
		if t.PrivateModeEnabled() {
			status = "on"
		}
		return send.SendText(ctx, cmdCtx.From, "private mode is "+status)
	}, nil
}

// newSudoHandler grants sudo authorization to the identities listed in the
// allow option (comma separated).
func newSudoHandler(t *Table, opts map[string]string) (HandlerFunc, error) {
	for _, id := range strings.Split(opts["allow"], ",") {
		t.addSudo(strings.TrimSpace(id))
	}
	return func(ctx context.Context, send session.Sender, _ *session.MessageEvent, _ []string, cmdCtx *Context) error {
		return send.SendText(ctx, cmdCtx.From, fmt.Sprintf("%d sudo users", len(t.sudo)))
	}, nil
}
