package internal

import (
	"fmt"
	"io"

	"github.com/goplus/kiln/internal/build"
	"github.com/goplus/kiln/internal/graph"
	"github.com/schollz/progressbar/v3"
)

// progress renders a progress bar over the nodes of a build.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer, total int) *progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("resolving"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	return &progress{bar: bar}
}

func (p *progress) NodeStarted(n *graph.Node) {
	p.bar.Describe(fmt.Sprintf("building %s", n.Ref))
}

func (p *progress) NodeFinished(r *build.NodeResult) {
	p.bar.Add(1)
}

func (p *progress) finish() {
	p.bar.Finish()
}
