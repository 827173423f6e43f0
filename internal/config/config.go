// Package config loads and validates groupbot's YAML configuration: the
// chat-adapter connection settings and the per-plugin sections (group
// allowlists, role mappings, free-form plugin settings).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Bot     Bot                     `yaml:"bot"`
	Plugins map[string]PluginConfig `yaml:"plugins"`
}

// Bot holds the adapter connection and host-wide settings.
type Bot struct {
	// WebsocketURL is the OneBot websocket endpoint, e.g. ws://host:port.
	WebsocketURL string `yaml:"websocket_url"`
	// AccessToken is sent as a bearer token; empty disables auth.
	AccessToken string `yaml:"access_token"`
	// ReportGroupID is the operator group for escalations; 0 disables
	// reporting and reports are silently dropped.
	ReportGroupID int64 `yaml:"report_group_id"`
	// StateDir is where plugin state files are stored.
	StateDir string `yaml:"state_dir"`
}

// PluginConfig is the per-plugin section.
type PluginConfig struct {
	// LimitedGroups restricts the plugin to these group IDs; empty means
	// every group.
	LimitedGroups []int64 `yaml:"limited_groups"`
	// Roles maps a role name to the caller IDs holding it.
	Roles map[string][]int64 `yaml:"roles"`
	// Settings carries free-form plugin-specific options.
	Settings map[string]string `yaml:"settings"`
}

// AllowsGroup reports whether the plugin may run in the given group.
func (p PluginConfig) AllowsGroup(groupID int64) bool {
	if len(p.LimitedGroups) == 0 {
		return true
	}
	for _, id := range p.LimitedGroups {
		if id == groupID {
			return true
		}
	}
	return false
}

// Load reads, parses, and validates the configuration file, applying
// defaults for optional fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.StateDir == "" {
		c.Bot.StateDir = "data"
	}
	if c.Bot.AccessToken == "" {
		c.Bot.AccessToken = os.Getenv("GROUPBOT_ACCESS_TOKEN")
	}
	if c.Plugins == nil {
		c.Plugins = make(map[string]PluginConfig)
	}
}

// Validate checks the loaded configuration for fatal omissions.
func (c *Config) Validate() error {
	if c.Bot.WebsocketURL == "" {
		return fmt.Errorf("bot.websocket_url is required")
	}
	return nil
}

// Plugin returns the section for a plugin, or a zero value when the plugin
// has no section (unrestricted, no roles).
func (c *Config) Plugin(name string) PluginConfig {
	return c.Plugins[name]
}
