package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrDuplicatePhrase indicates two catalog entries share the same canonical phrase.
var ErrDuplicatePhrase = errors.New("duplicate intent phrase")

// Entry maps one canonical intent phrase to the action that serves it.
type Entry struct {
	Phrase   string `yaml:"phrase" toml:"phrase" json:"phrase"`
	ActionID string `yaml:"action" toml:"action" json:"action"`
}

// Catalog is the ordered, immutable set of known intents.
//
// Position i in the catalog is the position i of the vector index built from it.
type Catalog struct {
	entries []Entry
}

// New validates entries and returns a catalog preserving their order.
// An empty slice yields a valid empty catalog.
func New(entries []Entry) (*Catalog, error) {
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		phrase := strings.TrimSpace(e.Phrase)
		action := strings.TrimSpace(e.ActionID)
		if phrase == "" {
			return nil, fmt.Errorf("intent %d: phrase is empty", i)
		}
		if action == "" {
			return nil, fmt.Errorf("intent %d (%q): action is empty", i, phrase)
		}
		if prev, ok := seen[phrase]; ok {
			return nil, fmt.Errorf("intent %d (%q) repeats intent %d: %w", i, phrase, prev, ErrDuplicatePhrase)
		}
		seen[phrase] = i
		out = append(out, Entry{Phrase: phrase, ActionID: action})
	}
	return &Catalog{entries: out}, nil
}

// Len returns the number of intents.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entry returns the intent at position i.
func (c *Catalog) Entry(i int) Entry {
	return c.entries[i]
}

// Entries returns a copy of the intents in catalog order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Phrases returns the canonical phrases in catalog order.
func (c *Catalog) Phrases() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Phrase
	}
	return out
}

// ActionIDs returns the distinct action ids in first-seen order.
func (c *Catalog) ActionIDs() []string {
	if c == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, e := range c.entries {
		if _, ok := seen[e.ActionID]; ok {
			continue
		}
		seen[e.ActionID] = struct{}{}
		out = append(out, e.ActionID)
	}
	return out
}

// Default returns the built-in intents shipped with opsroute.
func Default() []Entry {
	return []Entry{
		{Phrase: "check cpu usage", ActionID: "get_cpu_usage"},
		{Phrase: "monitor memory usage", ActionID: "get_memory_usage"},
		{Phrase: "fetch server statistics performance telemetry", ActionID: "grafana_server_statistics"},
		{Phrase: "fix slow down unresponsive server", ActionID: "ansible_playbook_execution"},
		{Phrase: "troubleshoot network application issue", ActionID: "ansible_playbook_execution"},
		{Phrase: "delete temporary files from temp folder when temp folder size exceed 5MB", ActionID: "e_delete_temp_files"},
	}
}

//go:embed standins/*.sh
var standins embed.FS

// StandIns returns the stand-in action scripts keyed by file name
// (<action-id>.sh). They emit canned text and exist so a fresh install can
// route and execute end to end.
func StandIns() fs.FS {
	sub, err := fs.Sub(standins, "standins")
	if err != nil {
		panic(err)
	}
	return sub
}
