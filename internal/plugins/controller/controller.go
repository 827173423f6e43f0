// Package controller provides the operator command tree: forcing plugin
// state persistence and inspecting the loaded plugins.
package controller

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"groupbot/internal/command"
	"groupbot/internal/config"
	"groupbot/internal/plugin"
)

// Plugin implements the admin-only "ctrl" command tree.
type Plugin struct {
	registry *plugin.Registry
	cfg      *config.Config
	entry    *command.Root
}

// New builds the controller over the registry and loaded configuration.
func New(reg *plugin.Registry, cfg *config.Config) *Plugin {
	p := &Plugin{registry: reg, cfg: cfg}
	admin := command.NewRoleSet("admin")
	p.entry = command.NewRoot("ctrl", "bot control commands", admin,
		command.NewGroup("state", "plugin state control", admin,
			command.NewLeaf("save", "save the state of every plugin", admin,
				command.NewFixed(p.stateSave)),
			command.NewLeaf("load", "reload the state of every plugin", admin,
				command.NewFixed(p.stateLoad)),
		),
		command.NewGroup("plugin", "plugin inspection", admin,
			command.NewLeaf("list", "list the loaded plugins", admin,
				command.NewFixed(p.pluginList)),
			command.NewLeaf("show-config", "show a plugin's configuration section", admin,
				command.NewFixed(p.pluginShowConfig,
					command.Param{Name: "plugin_name", Type: command.TypeString, Desc: "the plugin name"})),
		),
	)
	return p
}

func (p *Plugin) Name() string           { return "controller" }
func (p *Plugin) Entry() command.Command { return p.entry }

func (p *Plugin) stateSave(inv *command.Invocation) command.Result {
	for _, reg := range p.registry.All() {
		if err := plugin.SaveState(p.cfg.Bot.StateDir, reg); err != nil {
			return command.Result{
				Code:   1,
				Log:    fmt.Sprintf("State save failed for %s: %v", reg.Name(), err),
				Reply:  fmt.Sprintf("saving state for plugin %s failed: %v", reg.Name(), err),
				Report: fmt.Sprintf("state save failed for plugin %s: %v", reg.Name(), err),
			}
		}
	}
	return command.Result{Reply: "Saved the state of every plugin"}
}

func (p *Plugin) stateLoad(inv *command.Invocation) command.Result {
	for _, reg := range p.registry.All() {
		if err := plugin.LoadState(p.cfg.Bot.StateDir, reg); err != nil {
			return command.Result{
				Code:   1,
				Log:    fmt.Sprintf("State load failed for %s: %v", reg.Name(), err),
				Reply:  fmt.Sprintf("loading state for plugin %s failed: %v", reg.Name(), err),
				Report: fmt.Sprintf("state load failed for plugin %s: %v", reg.Name(), err),
			}
		}
	}
	return command.Result{Reply: "Loaded the state of every plugin"}
}

func (p *Plugin) pluginList(inv *command.Invocation) command.Result {
	lines := make([]string, 0)
	for _, reg := range p.registry.All() {
		lines = append(lines, fmt.Sprintf("* %s (%s)", reg.Name(), reg.Entry().Name()))
	}
	return command.Result{Reply: "Loaded plugins:\n" + strings.Join(lines, "\n")}
}

func (p *Plugin) pluginShowConfig(inv *command.Invocation, name string) command.Result {
	if _, ok := p.registry.Get(name); !ok {
		return command.Result{
			Code:  1,
			Log:   fmt.Sprintf("Plugin not found: %s", name),
			Reply: fmt.Sprintf("plugin %s not found", name),
		}
	}
	data, err := yaml.Marshal(p.cfg.Plugin(name))
	if err != nil {
		return command.Result{
			Code:   2,
			Log:    fmt.Sprintf("Config encode failed for %s: %v", name, err),
			Report: fmt.Sprintf("config encode failed for plugin %s: %v", name, err),
		}
	}
	return command.Result{Reply: strings.TrimRight(string(data), "\n")}
}
