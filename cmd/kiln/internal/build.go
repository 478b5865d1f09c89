package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/kiln/internal/artifact"
	"github.com/goplus/kiln/internal/build"
	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/engine"
	"github.com/goplus/kiln/internal/env"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/internal/lock"
	"github.com/goplus/kiln/internal/metrics"
	"github.com/goplus/kiln/internal/source"
	"github.com/goplus/kiln/internal/toolchain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	buildFlags       planFlags
	buildLockfile    string
	buildJobs        int
	buildPublish     bool
	buildMetricsFile string
	buildOutput      string
)

var buildCmd = &cobra.Command{
	Use:   "build <recipe>...",
	Short: "Resolve and build recipes with their dependencies",
	Long: `Build resolves the requirement graph of the root recipes and runs the
lifecycle of every package in dependency order. Packages already present in
the package cache are reused.

With --lockfile the recorded graph is built as is, without resolution or
option propagation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildFlags.register(buildCmd)
	fs := buildCmd.Flags()
	fs.StringVar(&buildLockfile, "lockfile", "", "Build the graph recorded in a lock file")
	fs.IntVarP(&buildJobs, "jobs", "j", 0, "Maximum number of packages built concurrently (default from config)")
	fs.BoolVar(&buildPublish, "publish", false, "Upload built packages to the configured store")
	fs.StringVar(&buildMetricsFile, "metrics-file", "", "Write build metrics in Prometheus text format")
	fs.StringVarP(&buildOutput, "output", "o", "", "Copy the root package to a directory or .zip file")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req, err := buildFlags.request(args)
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}
	p, err := plan(ctx, eng, req)
	if err != nil {
		return err
	}
	if buildOutput != "" && len(p.Graph.Roots) != 1 {
		return errors.New("--output needs exactly one root recipe")
	}
	if buildFlags.lockfileOut != "" {
		if err := lock.Write(buildFlags.lockfileOut, lock.FromGraph(p.Graph)); err != nil {
			return fmt.Errorf("failed to write lock file: %w", err)
		}
	}

	x, err := newExecutor(ctx, len(p.Graph.Nodes))
	if err != nil {
		return err
	}
	report, err := eng.Build(ctx, p, x)
	if prog, ok := x.Observer.(*progress); ok {
		prog.finish()
	}
	if err != nil {
		return err
	}
	if buildMetricsFile != "" {
		if err := x.Metrics.WriteFile(buildMetricsFile); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to write metrics.", "path", buildMetricsFile, "error", err)
		}
	}

	printReport(cmd.OutOrStdout(), report)
	if !report.OK() {
		return &ExitError{Code: exitFailures}
	}
	if buildOutput != "" {
		root := p.Graph.Roots[0]
		if err := outputResult(x.Cache.FilesDir(root), buildOutput); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// plan resolves req, or restores the graph of --lockfile.
func plan(ctx context.Context, eng *engine.Engine, req *engine.Request) (*engine.Plan, error) {
	if buildLockfile == "" {
		return eng.Plan(ctx, req)
	}
	if len(buildFlags.options) > 0 || len(buildFlags.settings) > 0 {
		return nil, errors.New("--option and --setting cannot be combined with --lockfile")
	}
	f, err := lock.Read(buildLockfile)
	if err != nil {
		return nil, err
	}
	return eng.Restore(ctx, req, f)
}

func newExecutor(ctx context.Context, total int) (*build.Executor, error) {
	pkgDir, err := env.PackagesDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate package cache: %w", err)
	}
	workDir, err := env.BuildDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate build dir: %w", err)
	}

	jobs := buildJobs
	if jobs <= 0 && cfg != nil {
		jobs = cfg.Jobs
	}
	packager := &build.ArchivePackager{}
	if buildPublish {
		if cfg == nil || cfg.Store == nil {
			return nil, errors.New("--publish needs a store block in the configuration file")
		}
		store, err := artifact.NewS3Store(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		packager.Store = store
	}

	tc := &toolchain.Process{}
	x := &build.Executor{
		Toolchain: tc,
		Fetcher:   &source.Fetcher{CacheDir: filepath.Join(workDir, "downloads")},
		Packager:  packager,
		Cache:     &build.Cache{Dir: pkgDir},
		WorkDir:   workDir,
		Jobs:      jobs,
		Publish:   buildPublish,
		Metrics:   metrics.New(),
	}
	if verbose {
		tc.Stdout, tc.Stderr = os.Stderr, os.Stderr
	} else if term.IsTerminal(int(os.Stderr.Fd())) {
		x.Observer = newProgress(os.Stderr, total)
	}
	return x, nil
}

// printReport lists built packages, then failed and blocked ones.
func printReport(w io.Writer, r *build.Report) {
	var built []*build.NodeResult
	for _, res := range r.Results {
		if res.Status == graph.Built {
			built = append(built, res)
		}
	}
	if len(built) > 0 {
		fmt.Fprint(w, colArrow.Sprint("-> "))
		fmt.Fprintln(w, colSuccess.Sprint("Built packages:"))
		for _, res := range built {
			note := res.Duration.Round(time.Millisecond).String()
			if res.Cached {
				note = "cached"
			}
			fmt.Fprintf(w, "  - %s (%s)\n", colNote.Sprint(res.Ref), note)
		}
	}
	failed := r.Failed()
	if len(failed) == 0 {
		return
	}
	fmt.Fprint(w, colArrow.Sprint("-> "))
	fmt.Fprintln(w, colError.Sprint("Failed or blocked packages:"))
	for _, res := range failed {
		var blocked *build.BlockedError
		if errors.As(res.Err, &blocked) {
			fmt.Fprintf(w, "  - %s %s\n", res.Ref, colWarn.Sprintf("(blocked by %s)", blocked.By))
			continue
		}
		fmt.Fprintf(w, "  - %s: %v\n", res.Ref, res.Err)
	}
}
