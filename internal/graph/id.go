package graph

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/goplus/kiln/recipe"
	"lukechampine.com/blake3"
)

// ComputePackageIDs sets the package id of every node of g. The id digests
// the reference, the settings snapshot, the final options and the ids of
// the direct runtime dependencies, so it changes whenever any input of the
// binary package changes.
func ComputePackageIDs(g *Graph) {
	for _, n := range g.Nodes {
		n.PackageID = packageID(n)
	}
}

func packageID(n *Node) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ref %s\n", n.Ref)
	axes := make([]string, 0, len(n.Settings))
	for k := range n.Settings {
		axes = append(axes, k)
	}
	slices.Sort(axes)
	for _, k := range axes {
		fmt.Fprintf(&buf, "setting %s=%s\n", k, n.Settings[k])
	}
	for _, k := range n.Options.Keys() {
		fmt.Fprintf(&buf, "option %s=%s\n", k, n.Options[k])
	}
	var deps []string
	for _, e := range n.Edges {
		if e.Kind == recipe.Runtime {
			deps = append(deps, e.To.Ref.String()+":"+e.To.PackageID)
		}
	}
	slices.Sort(deps)
	deps = slices.Compact(deps)
	for _, d := range deps {
		fmt.Fprintf(&buf, "requires %s\n", d)
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:20])
}
