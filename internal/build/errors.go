package build

import (
	"fmt"

	"github.com/goplus/kiln/recipe"
)

// SourceFetchError reports a failure to acquire the sources of a node.
type SourceFetchError struct {
	Ref recipe.Ref
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("%s: failed to fetch source: %v", e.Ref, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// BuildStepError reports a failed lifecycle stage. Status is the exit
// status of the external command, or -1 when none ran.
type BuildStepError struct {
	Ref    recipe.Ref
	Stage  recipe.Stage
	Status int
	Err    error
}

func (e *BuildStepError) Error() string {
	if e.Status >= 0 {
		return fmt.Sprintf("%s: %s failed with exit status %d: %v", e.Ref, e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Ref, e.Stage, e.Err)
}

func (e *BuildStepError) Unwrap() error {
	return e.Err
}

// PackagingError reports a failure to archive, record or publish a package.
type PackagingError struct {
	Ref recipe.Ref
	Err error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("%s: packaging failed: %v", e.Ref, e.Err)
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}

// BlockedError is the error of a node never dispatched because a
// dependency failed.
type BlockedError struct {
	Ref recipe.Ref
	By  recipe.Ref
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: blocked by failed dependency %s", e.Ref, e.By)
}
