package graph

import (
	"strings"

	"github.com/goplus/kiln/recipe"
)

// CyclicRequirementError reports a requirement cycle. Cycle starts and ends
// with the same reference.
type CyclicRequirementError struct {
	Cycle []recipe.Ref
}

func (e *CyclicRequirementError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, ref := range e.Cycle {
		parts[i] = ref.String()
	}
	return "cyclic requirement: " + strings.Join(parts, " -> ")
}
