package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate reports every problem in cfg. The returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	actions := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		id := strings.TrimSpace(a.ID)
		switch {
		case id == "":
			add("actions[%d]: id is empty", i)
			continue
		case actions[id]:
			add("actions[%d]: duplicate id %q", i, id)
		}
		actions[id] = true
		if strings.TrimSpace(a.Interpreter) == "" {
			add("actions[%d] (%s): interpreter is empty", i, id)
		}
		if strings.TrimSpace(a.Path) == "" {
			add("actions[%d] (%s): path is empty", i, id)
		} else if !pathInsideRoot(a.Path) {
			add("actions[%d] (%s): path %q must be relative and stay inside actions_root", i, id, a.Path)
		}
	}
	if len(c.Actions) > 0 && strings.TrimSpace(c.ActionsRoot) == "" {
		add("actions_root is empty")
	}

	phrases := make(map[string]bool, len(c.Intents))
	for i, in := range c.Intents {
		p := strings.TrimSpace(in.Phrase)
		if p == "" {
			add("intents[%d]: phrase is empty", i)
			continue
		}
		if phrases[p] {
			add("intents[%d]: duplicate phrase %q", i, p)
		}
		phrases[p] = true
		if !actions[strings.TrimSpace(in.ActionID)] {
			add("intents[%d] (%q): action %q is not registered", i, p, in.ActionID)
		}
	}

	if c.Router.MaxDistance < 0 {
		add("router.max_distance must be >= 0")
	}
	if c.Router.EmbedTimeout < 0 {
		add("router.embed_timeout must be >= 0")
	}
	if c.Executor.Timeout <= 0 {
		add("executor.timeout must be > 0")
	}
	if c.Executor.KillGrace < 0 {
		add("executor.kill_grace must be >= 0")
	}
	if c.Executor.MaxOutputBytes <= 0 {
		add("executor.max_output_bytes must be > 0")
	}
	if c.Server.MaxConcurrent <= 0 {
		add("server.max_concurrent must be > 0")
	}
	if c.Audit.Buffer < 0 {
		add("audit.buffer must be >= 0")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		add("log.format %q is not one of console, json", c.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%w", ErrInvalid, errors.Join(errs...))
}

func pathInsideRoot(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
