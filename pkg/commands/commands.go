// Package commands holds the command table and the loader that builds it
// from a provisioned module bundle. The table is immutable once loading
// completes; refreshing it requires a full provisioning re-run.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"wabot/pkg/session"
)

// Context carries per-message dispatch context into a handler.
type Context struct {
	From    string // conversation identity
	Sender  string // normalized sender identity
	IsGroup bool
	Prefix  string
}

// HandlerFunc is the command capability: given a send channel, the raw
// inbound message, positional args and the dispatch context, it produces
// side effects and may fail.
type HandlerFunc func(ctx context.Context, send session.Sender, msg *session.MessageEvent, args []string, cmdCtx *Context) error

// Command is one named unit of behavior.
type Command struct {
	Name        string
	Description string
	Handler     HandlerFunc
}

// Table maps case-insensitive command names to commands, plus the optional
// capabilities some modules provide.
type Table struct {
	commands map[string]*Command

	autoRead    bool
	privateMode bool
	owner       string
	sudo        map[string]bool
}

// NewTable creates an empty command table.
func NewTable() *Table {
	return &Table{
		commands: make(map[string]*Command),
		sudo:     make(map[string]bool),
	}
}

// Add registers a command. Names collide case-insensitively.
func (t *Table) Add(cmd *Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Handler == nil {
		return fmt.Errorf("command must have a name and a handler")
	}
	key := strings.ToLower(cmd.Name)
	if _, exists := t.commands[key]; exists {
		return fmt.Errorf("command %q already registered", key)
	}
	t.commands[key] = cmd
	return nil
}

// Lookup resolves a command name case-insensitively.
func (t *Table) Lookup(name string) (*Command, bool) {
	cmd, ok := t.commands[strings.ToLower(name)]
	return cmd, ok
}

// Len returns the number of registered commands.
func (t *Table) Len() int {
	return len(t.commands)
}

// Names returns all registered command names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AutoReadEnabled reports whether inbound messages should be acknowledged.
func (t *Table) AutoReadEnabled() bool {
	return t.autoRead
}

// PrivateModeEnabled reports whether execution is restricted to the owner
// and sudo-authorized senders.
func (t *Table) PrivateModeEnabled() bool {
	return t.privateMode
}

// IsOwner reports whether the normalized sender is the configured owner.
func (t *Table) IsOwner(sender string) bool {
	return t.owner != "" && session.NormalizeID(sender) == t.owner
}

// IsSudo reports whether the normalized sender holds sudo authorization.
func (t *Table) IsSudo(sender string) bool {
	return t.sudo[session.NormalizeID(sender)]
}

func (t *Table) setAutoRead(enabled bool) {
	t.autoRead = enabled
}

func (t *Table) setPrivateMode(enabled bool, owner string) {
	t.privateMode = enabled
	if owner != "" {
		t.owner = session.NormalizeID(owner)
	}
}

func (t *Table) addSudo(sender string) {
	if sender != "" {
		t.sudo[session.NormalizeID(sender)] = true
	}
}
