package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownAction is returned for ids that are not in the registry.
var ErrUnknownAction = errors.New("unknown action")

// Descriptor declares how one action is invoked.
//
// Path is relative to the registry root.
type Descriptor struct {
	ID          string
	Interpreter string
	Args        []string
	Path        string
}

// Registry is the closed set of runnable actions, validated once at startup.
type Registry struct {
	root  string
	order []string
	descs map[string]Descriptor
}

// NewRegistry validates descs against root. Files are not required to exist
// yet; that is checked on every Resolve.
func NewRegistry(root string, descs []Descriptor) (*Registry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("actions root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve actions root %s: %w", root, err)
	}

	r := &Registry{root: abs, descs: make(map[string]Descriptor, len(descs))}
	for i, d := range descs {
		d.ID = strings.TrimSpace(d.ID)
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("action %d: id is empty", i)
		case strings.TrimSpace(d.Interpreter) == "":
			return nil, fmt.Errorf("action %s: interpreter is empty", d.ID)
		case strings.TrimSpace(d.Path) == "":
			return nil, fmt.Errorf("action %s: path is empty", d.ID)
		}
		if _, dup := r.descs[d.ID]; dup {
			return nil, fmt.Errorf("action %s: duplicate id", d.ID)
		}
		if filepath.IsAbs(d.Path) {
			return nil, fmt.Errorf("action %s: path %q must be relative to the actions root", d.ID, d.Path)
		}
		clean := filepath.Clean(filepath.FromSlash(d.Path))
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("action %s: path %q escapes the actions root", d.ID, d.Path)
		}
		d.Path = clean
		d.Args = append([]string(nil), d.Args...)
		r.descs[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Root returns the absolute actions root.
func (r *Registry) Root() string { return r.root }

// IDs returns registered ids in declaration order.
func (r *Registry) IDs() []string { return append([]string(nil), r.order...) }

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.descs[id]
	return d, ok
}

// Invocation is a resolved, runnable action.
type Invocation struct {
	ID          string
	Interpreter string
	Args        []string
	Path        string
}

// Argv returns the child's argument vector. The query is passed as a single
// argument and never through a shell.
func (inv Invocation) Argv(query string) []string {
	argv := make([]string, 0, len(inv.Args)+3)
	argv = append(argv, inv.Interpreter)
	argv = append(argv, inv.Args...)
	argv = append(argv, inv.Path, query)
	return argv
}

// Resolve maps id to an Invocation. It returns ErrUnknownAction for ids not in
// the registry and an error wrapping fs.ErrNotExist when the file is absent.
func (r *Registry) Resolve(id string) (Invocation, error) {
	d, ok := r.descs[id]
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	p := filepath.Join(r.root, d.Path)
	st, err := os.Stat(p)
	if err != nil {
		return Invocation{}, fmt.Errorf("action %s: %w", id, err)
	}
	if st.IsDir() {
		return Invocation{}, fmt.Errorf("action %s: %s is a directory: %w", id, p, fs.ErrNotExist)
	}
	return Invocation{
		ID:          d.ID,
		Interpreter: d.Interpreter,
		Args:        append([]string(nil), d.Args...),
		Path:        p,
	}, nil
}
