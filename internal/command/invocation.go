package command

import (
	"context"
	"time"
)

// Replier sends a text reply to the chat a command came from.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// Reporter escalates a message to the operator channel.
type Reporter interface {
	Report(ctx context.Context, text string) error
}

// Follower solicits one follow-up message from the same caller in the same
// chat. The call blocks the current dispatch (and only it) until the caller
// sends another message, the timeout expires, or the context is done.
type Follower interface {
	Next(ctx context.Context, timeout time.Duration) (string, error)
}

// Invocation carries the per-dispatch collaborator surface a handler may
// touch. It is the leading parameter of every handler and plays the part
// the plugin instance plays in the registration API: identity, computed
// roles, and the reply channel for the originating chat.
type Invocation struct {
	// Ctx is the dispatch context. Blocking work inside handlers should
	// honor it.
	Ctx context.Context
	// CallerID is the numeric identity of the message sender.
	CallerID int64
	// GroupID is the chat the message arrived in.
	GroupID int64
	// Roles is the caller's role set, computed once for this dispatch.
	Roles RoleSet
	// Replier sends replies to the originating chat.
	Replier Replier
	// Follower may be nil when the host does not support follow-ups.
	Follower Follower
}

// Reply sends text to the originating chat using the invocation context.
func (inv *Invocation) Reply(text string) error {
	return inv.Replier.Reply(inv.Ctx, text)
}
