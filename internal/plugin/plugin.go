// Package plugin defines the pluggable-unit contract and the explicit
// registry the host builds at startup. A plugin contributes exactly one
// command tree entry point (a Root or a Leaf); optional capabilities such as
// persisted state or configuration are discovered by interface assertion.
package plugin

import (
	"groupbot/internal/command"
	"groupbot/internal/config"
)

// Plugin is a pluggable command unit.
type Plugin interface {
	// Name identifies the plugin for configuration sections, state files,
	// and operator listings. Distinct from the entry command's name.
	Name() string
	// Entry returns the plugin's command tree entry point. The registry
	// rejects anything that is not a *command.Root or *command.Leaf.
	Entry() command.Command
}

// Stateful is implemented by plugins whose state is persisted across
// restarts. State is stored as JSON by the host.
type Stateful interface {
	// MarshalState returns the value serialized to the state file.
	MarshalState() (any, error)
	// RestoreState replaces the plugin's state from serialized JSON.
	RestoreState(data []byte) error
}

// Configurable is implemented by plugins that consume their configuration
// section. Configure runs once at startup, before any dispatch.
type Configurable interface {
	Configure(cfg config.PluginConfig) error
}

// RolesFor computes the caller's role set from a role-to-identity mapping.
// It is evaluated once per dispatch and never cached.
func RolesFor(callerID int64, mapping map[string][]int64) command.RoleSet {
	roles := command.NewRoleSet()
	for role, ids := range mapping {
		for _, id := range ids {
			if id == callerID {
				roles[role] = struct{}{}
				break
			}
		}
	}
	return roles
}
