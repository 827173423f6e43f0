// Package bot glues the chat transport to the dispatch engine. It matches
// inbound group messages to plugin entry commands, computes caller roles,
// and parks handlers that asked for a follow-up message.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"groupbot/internal/command"
	"groupbot/internal/config"
	"groupbot/internal/dispatch"
	"groupbot/internal/logger"
	"groupbot/internal/onebot"
	"groupbot/internal/plugin"
)

// ErrFollowUpTimeout is returned by Follower.Next when the caller never sent
// another message within the timeout.
var ErrFollowUpTimeout = errors.New("timed out waiting for a follow-up message")

// ErrFollowUpBusy is returned when a handler for the same caller and group is
// already waiting on a follow-up.
var ErrFollowUpBusy = errors.New("another command is already waiting for a follow-up")

// Sender posts text to a group chat. The onebot client satisfies it.
type Sender interface {
	SendGroupMessage(ctx context.Context, groupID int64, text string) error
}

// waiterKey identifies a parked follow-up by caller and chat.
type waiterKey struct {
	groupID int64
	userID  int64
}

// Bot routes inbound messages to plugin command trees.
type Bot struct {
	cfg      *config.Config
	registry *plugin.Registry
	sender   Sender
	disp     *dispatch.Dispatcher

	mu      sync.Mutex
	waiters map[waiterKey]chan string
}

// New builds a Bot over a loaded configuration, a populated plugin registry,
// and an outbound sender.
func New(cfg *config.Config, reg *plugin.Registry, sender Sender) *Bot {
	b := &Bot{
		cfg:      cfg,
		registry: reg,
		sender:   sender,
		waiters:  make(map[waiterKey]chan string),
	}
	var reporter command.Reporter
	if cfg.Bot.ReportGroupID != 0 {
		reporter = &groupChannel{sender: sender, groupID: cfg.Bot.ReportGroupID}
	}
	b.disp = dispatch.New(reporter)
	return b
}

// Setup configures registered plugins from their config sections and
// restores persisted state. It runs once, before any message is handled.
func (b *Bot) Setup() error {
	for _, p := range b.registry.All() {
		if c, ok := p.(plugin.Configurable); ok {
			if err := c.Configure(b.cfg.Plugin(p.Name())); err != nil {
				return fmt.Errorf("configure plugin %s: %w", p.Name(), err)
			}
		}
		if err := plugin.LoadState(b.cfg.Bot.StateDir, p); err != nil {
			return err
		}
	}
	return nil
}

// SaveAll persists every plugin's state. Failures are logged per plugin so
// one bad plugin cannot block the others during shutdown.
func (b *Bot) SaveAll() {
	for _, p := range b.registry.All() {
		if err := plugin.SaveState(b.cfg.Bot.StateDir, p); err != nil {
			logger.Error("State save failed", "plugin", p.Name(), "error", err)
		}
	}
}

// Announce posts text to the report group, if one is configured.
func (b *Bot) Announce(ctx context.Context, text string) error {
	if b.cfg.Bot.ReportGroupID == 0 {
		return nil
	}
	return b.sender.SendGroupMessage(ctx, b.cfg.Bot.ReportGroupID, text)
}

// HandleMessage routes one inbound group message. Messages a parked handler
// is waiting for are consumed here; command lines dispatch on their own
// goroutine so a slow handler never stalls the transport's read loop.
func (b *Bot) HandleMessage(ctx context.Context, msg *onebot.GroupMessage) {
	if b.deliverFollowUp(msg) {
		return
	}

	fields := strings.Fields(msg.RawMessage)
	if len(fields) == 0 {
		return
	}
	p, ok := b.registry.Lookup(fields[0])
	if !ok {
		return
	}

	pcfg := b.cfg.Plugin(p.Name())
	if !pcfg.AllowsGroup(msg.GroupID) {
		logger.Debug("Group not enabled for plugin", "plugin", p.Name(), "group", msg.GroupID)
		return
	}

	key := waiterKey{groupID: msg.GroupID, userID: msg.UserID}
	inv := &command.Invocation{
		Ctx:      ctx,
		CallerID: msg.UserID,
		GroupID:  msg.GroupID,
		Roles:    plugin.RolesFor(msg.UserID, pcfg.Roles),
		Replier:  &groupChannel{sender: b.sender, groupID: msg.GroupID},
		Follower: &follower{bot: b, key: key},
	}
	go b.disp.Dispatch(p.Entry(), msg.RawMessage, inv)
}

// deliverFollowUp hands the message to a parked handler, if any. It reports
// whether the message was consumed.
func (b *Bot) deliverFollowUp(msg *onebot.GroupMessage) bool {
	b.mu.Lock()
	ch, ok := b.waiters[waiterKey{groupID: msg.GroupID, userID: msg.UserID}]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg.RawMessage:
		return true
	default:
		return false
	}
}

func (b *Bot) addWaiter(key waiterKey) (chan string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.waiters[key]; exists {
		return nil, ErrFollowUpBusy
	}
	ch := make(chan string, 1)
	b.waiters[key] = ch
	return ch, nil
}

func (b *Bot) removeWaiter(key waiterKey, ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiters[key] == ch {
		delete(b.waiters, key)
	}
}

// groupChannel binds the sender to one group. It serves both as the reply
// channel of an invocation and as the operator report channel.
type groupChannel struct {
	sender  Sender
	groupID int64
}

func (g *groupChannel) Reply(ctx context.Context, text string) error {
	return g.sender.SendGroupMessage(ctx, g.groupID, text)
}

func (g *groupChannel) Report(ctx context.Context, text string) error {
	return g.sender.SendGroupMessage(ctx, g.groupID, text)
}

// follower parks the calling handler until the same caller sends another
// message in the same group.
type follower struct {
	bot *Bot
	key waiterKey
}

func (f *follower) Next(ctx context.Context, timeout time.Duration) (string, error) {
	ch, err := f.bot.addWaiter(f.key)
	if err != nil {
		return "", err
	}
	defer f.bot.removeWaiter(f.key, ch)

	select {
	case text := <-ch:
		return text, nil
	case <-time.After(timeout):
		return "", ErrFollowUpTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
