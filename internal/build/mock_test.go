package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/internal/toolchain"
	"github.com/goplus/kiln/recipe"
)

// statusError mimics a command exiting with a status.
type statusError int

func (e statusError) Error() string   { return fmt.Sprintf("exit status %d", int(e)) }
func (e statusError) ExitStatus() int { return int(e) }

// mockToolchain records stage runs and fails the ones listed in fail,
// keyed by "name/stage". Build stages sleep for delay and are counted.
type mockToolchain struct {
	fail  map[string]error
	delay time.Duration

	mu     sync.Mutex
	runs   []string
	scopes []string
	active int
	peak   int
	builds map[string]int
}

func (m *mockToolchain) Generate(ctx context.Context, n *graph.Node, ws *toolchain.Workspace, deps toolchain.Deps) (*toolchain.Environment, error) {
	env := toolchain.NewEnvironment(nil)
	for _, info := range deps.Runtime {
		env.Use(info)
	}
	return env, m.record(n, recipe.StageGenerate, nil)
}

func (m *mockToolchain) Run(ctx context.Context, n *graph.Node, st recipe.Stage, sc *toolchain.Scope) error {
	if err := m.record(n, st, sc); err != nil {
		return err
	}
	if st == recipe.StageBuild {
		m.enter(n)
		time.Sleep(m.delay)
		m.leave()
	}
	if st == recipe.StagePackage {
		dir := filepath.Join(sc.Workspace.PackageDir, "lib")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, "lib"+n.Ref.Name+".a"), []byte(n.Ref.String()), 0o644)
	}
	if st == recipe.StagePackageInfo {
		sc.Info.Libs = append(sc.Info.Libs, n.Ref.Name)
	}
	return nil
}

func (m *mockToolchain) record(n *graph.Node, st recipe.Stage, sc *toolchain.Scope) error {
	key := n.Ref.Name + "/" + st.String()
	m.mu.Lock()
	m.runs = append(m.runs, key)
	if sc != nil {
		m.scopes = append(m.scopes, sc.Dir)
	}
	m.mu.Unlock()
	return m.fail[key]
}

func (m *mockToolchain) enter(n *graph.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.builds == nil {
		m.builds = make(map[string]int)
	}
	m.builds[n.Ref.String()]++
	m.active++
	m.peak = max(m.peak, m.active)
}

func (m *mockToolchain) leave() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

func (m *mockToolchain) ran(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r == key {
			return true
		}
	}
	return false
}

// mockFetcher writes a marker file into the source folder.
type mockFetcher struct {
	err error
}

func (f *mockFetcher) Fetch(ctx context.Context, n *graph.Node, target string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filepath.Join(target, "README"), []byte(n.Ref.String()), 0o644)
}

// mockStore records uploaded keys.
type mockStore struct {
	mu   sync.Mutex
	keys []string
}

func (s *mockStore) Put(ctx context.Context, key, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return nil
}

// recordingObserver collects finished results.
type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []*NodeResult
}

func (o *recordingObserver) NodeStarted(n *graph.Node) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *recordingObserver) NodeFinished(r *NodeResult) {
	o.mu.Lock()
	o.finished = append(o.finished, r)
	o.mu.Unlock()
}
