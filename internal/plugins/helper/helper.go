// Package helper provides the unrestricted "help" command: it lists the
// commands a caller may actually use in the current group, or renders the
// contextual help of one command path.
package helper

import (
	"fmt"
	"strings"

	"groupbot/internal/command"
	"groupbot/internal/config"
	"groupbot/internal/dispatch"
	"groupbot/internal/logger"
	"groupbot/internal/plugin"
)

// Plugin implements the "help" leaf command.
type Plugin struct {
	registry *plugin.Registry
	cfg      *config.Config
	entry    *command.Leaf
}

// New builds the helper over the registry and loaded configuration.
func New(reg *plugin.Registry, cfg *config.Config) *Plugin {
	p := &Plugin{registry: reg, cfg: cfg}
	p.entry = command.NewLeaf("help", "list available commands or show help for one", nil,
		command.NewVariadic(p.help, nil,
			command.Param{Name: "command", Type: command.TypeString,
				Desc: "the command to show help for; empty lists every available command"}))
	return p
}

func (p *Plugin) Name() string           { return "helper" }
func (p *Plugin) Entry() command.Command { return p.entry }

func (p *Plugin) help(inv *command.Invocation, parts ...string) command.Result {
	if len(parts) == 0 {
		return command.Result{Reply: p.available(inv)}
	}

	target, ok := p.registry.Lookup(parts[0])
	if ok && !p.cfg.Plugin(target.Name()).AllowsGroup(inv.GroupID) {
		// Hidden in this group; treat like any other unknown command.
		ok = false
	}
	if !ok {
		p.reply(inv, fmt.Sprintf("unknown command %q", parts[0]))
		return command.Result{
			Code:  1,
			Log:   fmt.Sprintf("Command not found: %s", parts[0]),
			Reply: p.available(inv),
		}
	}

	// Permission checks use the caller's roles under the target plugin's
	// mapping, not the helper's.
	roles := plugin.RolesFor(inv.CallerID, p.cfg.Plugin(target.Name()).Roles)
	node, rest, denied := dispatch.Resolve(target.Entry(), parts, roles)
	if denied {
		return command.Result{
			Code:  1,
			Log:   fmt.Sprintf("Permission denied: %s", node.FullName()),
			Reply: fmt.Sprintf("%q: permission denied", node.FullName()),
		}
	}
	if len(rest) > 0 {
		return command.Result{
			Code:  1,
			Log:   fmt.Sprintf("Invalid command: %s %s", node.FullName(), rest[0]),
			Reply: fmt.Sprintf("%q: invalid subcommand %q", node.FullName(), rest[0]),
		}
	}
	return command.Result{Reply: node.HelpInfo(roles)}
}

// available renders the root commands the caller may use in this group.
func (p *Plugin) available(inv *command.Invocation) string {
	var lines []string
	for _, target := range p.registry.All() {
		pcfg := p.cfg.Plugin(target.Name())
		if !pcfg.AllowsGroup(inv.GroupID) {
			continue
		}
		entry := target.Entry()
		if entry.Limited() != nil &&
			!entry.Limited().Intersects(plugin.RolesFor(inv.CallerID, pcfg.Roles)) {
			continue
		}
		lines = append(lines, fmt.Sprintf("* %s: %s", entry.Name(), entry.Description()))
	}
	if len(lines) == 0 {
		return "No commands available"
	}
	return "Available commands:\n" + strings.Join(lines, "\n")
}

func (p *Plugin) reply(inv *command.Invocation, text string) {
	if err := inv.Reply(text); err != nil {
		logger.Warn("Reply failed", "plugin", p.Name(), "error", err)
	}
}
