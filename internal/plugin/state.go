package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"groupbot/internal/logger"
)

// statePath returns the JSON state file for a plugin.
func statePath(dir string, p Plugin) string {
	return filepath.Join(dir, p.Name()+".json")
}

// LoadState restores a plugin's persisted state from <dir>/<name>.json.
// Plugins that are not Stateful, and missing state files, are not errors.
func LoadState(dir string, p Plugin) error {
	s, ok := p.(Stateful)
	if !ok {
		return nil
	}

	data, err := os.ReadFile(statePath(dir, p))
	if os.IsNotExist(err) {
		logger.Info("State file not found", "plugin", p.Name())
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state for %s: %w", p.Name(), err)
	}

	if err := s.RestoreState(data); err != nil {
		return fmt.Errorf("restore state for %s: %w", p.Name(), err)
	}
	logger.Info("State loaded", "plugin", p.Name())
	return nil
}

// SaveState persists a plugin's state to <dir>/<name>.json, keeping the
// previous file as a .bak backup.
func SaveState(dir string, p Plugin) error {
	s, ok := p.(Stateful)
	if !ok {
		return nil
	}

	obj, err := s.MarshalState()
	if err != nil {
		return fmt.Errorf("marshal state for %s: %w", p.Name(), err)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", p.Name(), err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := statePath(dir, p)
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("back up state for %s: %w", p.Name(), err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state for %s: %w", p.Name(), err)
	}
	logger.Info("State saved", "plugin", p.Name())
	return nil
}
