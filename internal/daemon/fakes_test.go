package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kang-git/threejs-sync-server/internal/config"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
)

// fakeGit clones a small three.js-shaped tree instead of talking to a remote.
type fakeGit struct {
	mu     sync.Mutex
	remote string
	clones int
	pulls  int
}

var checkoutFiles = map[string]string{
	".git/HEAD":             "ref: refs/heads/dev\n",
	"README.md":             "# three.js\n",
	"build/three.module.js": "export const REVISION = '170';\n",
	"docs/index.html":       "<html><head><title>three.js docs</title></head></html>",
	"src/Three.js":          "export {};\n",
}

func (f *fakeGit) Clone(_ context.Context, url, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clones++
	f.remote = url
	for name, content := range checkoutFiles {
		p := filepath.Join(path, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeGit) Pull(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return nil
}

func (f *fakeGit) RemoteURL(string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote, nil
}

func (f *fakeGit) SetRemoteURL(_, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = url
	return nil
}

func (f *fakeGit) IsRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// okRunner pretends every npm command succeeded.
type okRunner struct{}

func (okRunner) Run(context.Context, pipeline.Command) (pipeline.Output, error) {
	return pipeline.Output{Combined: []byte("ok\n")}, nil
}

// testConfig returns a configuration rooted in a temp dir, listening on an
// ephemeral loopback port.
func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	root := t.TempDir()
	yaml := `
sources:
  - name: github
    url: https://example.com/three.js.git
storage:
  checkout_dir: ` + filepath.Join(root, "three.js") + `
  serve_dir: ` + filepath.Join(root, "public") + `
  data_dir: ` + filepath.Join(root, "data") + `
sync:
  retry_delay: 1ms
build:
  copy_dirs: [build, docs, src]
logging:
  dir: ` + filepath.Join(root, "logs") + `
  console: false
monitoring:
  metrics_enabled: true
` + extra
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, git *fakeGit) *Daemon {
	t.Helper()
	d, err := New(t.Context(), cfg, "", WithGitClient(git), WithRunner(okRunner{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d
}
