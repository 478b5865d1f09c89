package build

import (
	"time"

	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/recipe"
)

// NodeResult is the outcome of one node.
type NodeResult struct {
	Ref       recipe.Ref
	PackageID string
	Status    graph.Status
	Cached    bool
	Err       error
	// BlockedBy is the failed dependency that prevented the node from
	// being dispatched.
	BlockedBy recipe.Ref
	Duration  time.Duration

	Archive string
	Digest  string
	Info    *recipe.PackageInfo
}

// Report lists the node results in graph order.
type Report struct {
	Results []*NodeResult
}

// Failed returns the results of failed nodes, blocked ones included.
func (r *Report) Failed() []*NodeResult {
	var ret []*NodeResult
	for _, res := range r.Results {
		if res.Status == graph.Failed {
			ret = append(ret, res)
		}
	}
	return ret
}

// Result returns the result of ref, or nil.
func (r *Report) Result(ref recipe.Ref) *NodeResult {
	for _, res := range r.Results {
		if res.Ref == ref {
			return res
		}
	}
	return nil
}

// OK reports whether every node was built.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}
