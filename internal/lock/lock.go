// Package lock records a resolved graph so that later builds can skip
// resolution and option propagation.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/recipe"
)

// Version is the lock file format version.
const Version = 1

// File is the lock artifact.
type File struct {
	Version  int               `json:"version"`
	Settings map[string]string `json:"settings,omitempty"`
	Roots    []recipe.Ref      `json:"roots"`
	// Nodes are in topological order.
	Nodes []Node `json:"nodes"`
}

// Node pins one graph node.
type Node struct {
	Ref       recipe.Ref        `json:"ref"`
	PackageID string            `json:"package_id"`
	Options   recipe.Options    `json:"options,omitempty"`
	Settings  map[string]string `json:"settings,omitempty"`
	Requires  []Requirement     `json:"requires,omitempty"`
}

// Requirement is one edge of a locked node.
type Requirement struct {
	Ref  recipe.Ref  `json:"ref"`
	Kind recipe.Kind `json:"kind"`
}

// FromGraph records g.
func FromGraph(g *graph.Graph) *File {
	f := &File{Version: Version, Settings: g.Settings}
	for _, n := range g.Roots {
		f.Roots = append(f.Roots, n.Ref)
	}
	for _, n := range g.Nodes {
		ln := Node{
			Ref:       n.Ref,
			PackageID: n.PackageID,
			Options:   n.Options,
			Settings:  n.Settings,
		}
		for _, e := range n.Edges {
			ln.Requires = append(ln.Requires, Requirement{Ref: e.To.Ref, Kind: e.Kind})
		}
		f.Nodes = append(f.Nodes, ln)
	}
	return f
}

// Marshal encodes f as indented JSON.
func (f *File) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write writes f to path.
func Write(path string, f *File) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read reads the lock file at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", path, err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("lock file %s: unsupported version %d", path, f.Version)
	}
	return &f, nil
}

// Restore rebuilds the graph recorded in f, loading recipes through
// lookup. Roots are looked up too, so they must be registered or indexed.
// Options are taken from the lock file as is.
func Restore(ctx context.Context, f *File, lookup graph.Lookuper) (*graph.Graph, error) {
	g := graph.New(f.Settings)
	for _, ln := range f.Nodes {
		def, err := lookup.Lookup(ctx, ln.Ref)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", ln.Ref, err)
		}
		if def.Ref != ln.Ref {
			def = def.WithRef(ln.Ref)
		}
		n := graph.NewNode(def, f.Settings)
		if ln.Settings != nil {
			n.Settings = ln.Settings
		}
		n.Options = ln.Options.Clone()
		n.PackageID = ln.PackageID
		if err := g.Add(n); err != nil {
			return nil, err
		}
		for _, req := range ln.Requires {
			dep := g.Node(req.Ref)
			if dep == nil {
				return nil, fmt.Errorf("restore %s: requirement %s is not locked before it", ln.Ref, req.Ref)
			}
			g.Connect(n, dep, req.Kind, nil)
		}
	}
	for _, ref := range f.Roots {
		n := g.Node(ref)
		if n == nil {
			return nil, fmt.Errorf("restore: root %s is not locked", ref)
		}
		g.Roots = append(g.Roots, n)
	}
	return g, nil
}
