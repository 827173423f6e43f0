package dispatch

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"groupbot/internal/command"
	"groupbot/internal/logger"
)

// Dispatcher drives one dispatch at a time through the pipeline
// tokenize -> resolve -> bind -> invoke -> interpret. A Dispatcher holds no
// per-dispatch state; concurrent dispatches may share one instance.
type Dispatcher struct {
	log      *log.Logger
	reporter command.Reporter
}

// New creates a Dispatcher. reporter may be nil, in which case Report
// channels of handler results are silently dropped.
func New(reporter command.Reporter) *Dispatcher {
	return &Dispatcher{log: logger.Logger, reporter: reporter}
}

// Resolve walks the command tree from root, applying permission checks at
// every hop. It returns the deepest node reached, the tokens left over, and
// whether traversal stopped on a permission denial. Token 0 is the root's
// own name, already matched by the caller; an empty token slice resolves to
// the root itself.
func Resolve(root command.Command, tokens []string, roles command.RoleSet) (command.Command, []string, bool) {
	if denied(root, roles) {
		return root, tail(tokens, 1), true
	}

	current := root
	idx := 1
	for {
		g := groupOf(current)
		if g == nil {
			// Leaf reached.
			return current, tail(tokens, idx), false
		}
		if idx >= len(tokens) {
			// Tokens ran out above a leaf: incomplete command.
			return current, nil, false
		}
		next := g.Child(tokens[idx])
		if next == nil {
			return current, tokens[idx:], false
		}
		if denied(next, roles) {
			return next, tokens[idx+1:], true
		}
		current = next
		idx++
	}
}

// tail returns tokens[from:], or nil when fewer tokens exist.
func tail(tokens []string, from int) []string {
	if from >= len(tokens) {
		return nil
	}
	return tokens[from:]
}

// denied reports whether roles fail the node's restriction.
func denied(c command.Command, roles command.RoleSet) bool {
	return c.Limited() != nil && !c.Limited().Intersects(roles)
}

// groupOf returns the Group view of a node, or nil for leaves.
func groupOf(c command.Command) *command.Group {
	switch v := c.(type) {
	case *command.Root:
		return &v.Group
	case *command.Group:
		return v
	default:
		return nil
	}
}

// isHelpFlag reports whether a token requests contextual help.
func isHelpFlag(tok string) bool {
	return tok == "-h" || tok == "--help"
}

// Dispatch runs the full pipeline for one inbound line against one command
// tree. Malformed input, unknown subcommands, permission denials, and
// argument errors are all rendered as replies; nothing here panics on user
// input.
func (d *Dispatcher) Dispatch(root command.Command, line string, inv *command.Invocation) {
	lg := d.log.With("dispatch", uuid.NewString(), "command", root.Name(), "caller", inv.CallerID)

	tokens, err := Tokenize(line)
	if err != nil {
		lg.Error("Tokenize failed", "error", err)
		d.reply(lg, inv, fmt.Sprintf("cannot parse command line: %v", err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	node, rest, deniedAt := Resolve(root, tokens, inv.Roles)

	if deniedAt {
		lg.Error("Permission denied",
			"command", node.FullName(),
			"limited_roles", node.Limited().Names(),
			"roles", inv.Roles.Names())
		d.reply(lg, inv, fmt.Sprintf("%q: permission denied", node.FullName()))
		return
	}

	leaf, ok := node.(*command.Leaf)
	if !ok {
		// Incomplete command: the caller gets this node's help.
		if len(rest) == 0 {
			lg.Error("Incomplete command", "command", node.FullName())
			d.reply(lg, inv, node.HelpInfo(inv.Roles))
			return
		}
		if isHelpFlag(rest[0]) {
			d.reply(lg, inv, node.HelpInfo(inv.Roles))
			return
		}
		lg.Error("Invalid command", "command", node.FullName(), "subcommand", rest[0])
		d.reply(lg, inv, fmt.Sprintf("%q: invalid subcommand %q", node.FullName(), rest[0]))
		d.reply(lg, inv, node.HelpInfo(inv.Roles))
		return
	}

	if len(rest) > 0 && isHelpFlag(rest[0]) {
		d.reply(lg, inv, leaf.HelpInfo(inv.Roles))
		return
	}

	ret := leaf.Function().Call(inv, rest)
	d.interpret(lg, inv, leaf, ret)
}

// interpret applies the four independent effects of a handler result:
// log, reply, report, help.
func (d *Dispatcher) interpret(lg *log.Logger, inv *command.Invocation, leaf *command.Leaf, ret command.Result) {
	if ret.Code != 0 {
		if ret.Log != "" {
			lg.Error(ret.Log, "code", ret.Code)
		} else {
			lg.Error("Unknown error occurred", "code", ret.Code)
		}
	} else if ret.Log != "" {
		lg.Info(ret.Log)
	}

	if ret.Reply != "" {
		d.reply(lg, inv, ret.Reply)
	}

	if ret.Report != "" && d.reporter != nil {
		if err := d.reporter.Report(inv.Ctx, ret.Report); err != nil {
			lg.Warn("Report failed", "error", err)
		}
	}

	if ret.NeedHelp {
		d.reply(lg, inv, leaf.HelpInfo(inv.Roles))
	}
}

func (d *Dispatcher) reply(lg *log.Logger, inv *command.Invocation, text string) {
	if err := inv.Reply(text); err != nil {
		lg.Warn("Reply failed", "error", err)
	}
}
