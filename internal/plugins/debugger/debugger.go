// Package debugger provides the admin-only "debug" command tree used to
// poke at the bot from inside a chat.
package debugger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"groupbot/internal/command"
	"groupbot/internal/config"
)

const defaultFollowUpTimeout = 30 * time.Second

// Plugin implements the "debug" command tree.
type Plugin struct {
	entry         *command.Root
	started       time.Time
	followTimeout time.Duration
}

// New builds the debugger. The uptime clock starts here.
func New() *Plugin {
	p := &Plugin{started: time.Now(), followTimeout: defaultFollowUpTimeout}
	admin := command.NewRoleSet("admin")
	p.entry = command.NewRoot("debug", "debugging commands", admin,
		command.NewLeaf("echo", "echo a piece of text", admin,
			command.NewFixed(p.echo,
				command.Param{Name: "text", Type: command.TypeString, Desc: "the text to echo"})),
		command.NewLeaf("echo-json", "echo a JSON document, pretty-printed", admin,
			command.NewFixed(p.echoJSON,
				command.Param{Name: "data", Type: command.TypeString, Desc: "the JSON document to echo"})),
		command.NewLeaf("echo-next", "echo the caller's next message", admin,
			command.NewFixed(p.echoNext)),
		command.NewLeaf("uptime", "show how long the bot has been running", admin,
			command.NewFixed(p.uptime)),
	)
	return p
}

func (p *Plugin) Name() string           { return "debugger" }
func (p *Plugin) Entry() command.Command { return p.entry }

// Configure reads the follow_up_timeout setting, a Go duration string.
func (p *Plugin) Configure(cfg config.PluginConfig) error {
	raw, ok := cfg.Settings["follow_up_timeout"]
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("debugger: parse follow_up_timeout: %w", err)
	}
	p.followTimeout = d
	return nil
}

func (p *Plugin) echo(inv *command.Invocation, text string) command.Result {
	return command.Result{Reply: text}
}

func (p *Plugin) echoJSON(inv *command.Invocation, data string) command.Result {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(data), "", "  "); err != nil {
		return command.Result{
			Code:  1,
			Log:   fmt.Sprintf("JSON decode error: %v", err),
			Reply: fmt.Sprintf("JSON decode error: %v", err),
		}
	}
	return command.Result{Reply: buf.String()}
}

func (p *Plugin) echoNext(inv *command.Invocation) command.Result {
	if inv.Follower == nil {
		return command.Result{Code: 1, Reply: "follow-up messages are not supported here"}
	}
	if err := inv.Reply("Send the message to echo"); err != nil {
		return command.Result{Code: 2, Log: fmt.Sprintf("Reply failed: %v", err)}
	}
	text, err := inv.Follower.Next(inv.Ctx, p.followTimeout)
	if err != nil {
		return command.Result{
			Code:  1,
			Log:   fmt.Sprintf("Follow-up failed: %v", err),
			Reply: fmt.Sprintf("nothing to echo: %v", err),
		}
	}
	return command.Result{Reply: text}
}

func (p *Plugin) uptime(inv *command.Invocation) command.Result {
	return command.Result{Reply: fmt.Sprintf("up %s", time.Since(p.started).Round(time.Second))}
}
