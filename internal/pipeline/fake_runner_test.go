package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kang-git/threejs-sync-server/internal/config"
)

// fakeRunner records commands and fails those whose string form is listed in
// fail.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	out   string
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd.String())
	if err, ok := f.fail[cmd.String()]; ok {
		return Output{Combined: []byte(f.out)}, err
	}
	return Output{Combined: []byte(f.out)}, nil
}

func (f *fakeRunner) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func testBuildConfig(t *testing.T) config.BuildConfig {
	t.Helper()
	cfg, err := config.Parse([]byte("sources:\n  - url: https://example.com/three.js.git\n"))
	require.NoError(t, err)
	return cfg.Build
}

// writeFiles creates files relative to root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// newCheckout lays out a small three.js-shaped checkout.
func newCheckout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"README.md":                      "# three.js\n\nJavaScript 3D library.\n",
		"build/three.module.js":          "export const REVISION = '170';\n",
		"docs/index.html":                `<html><head><title>three.js docs</title></head><body><a href="https://threejs.org/">home</a></body></html>`,
		"docs/api/en/core/Object3D.html": `<p>[link:https://github.com/mrdoob/three.js/blob/master/src/core/Object3D.js src/core/Object3D.js]</p>`,
		"editor/index.html":              "<title>editor</title>",
		"examples/index.html":            `<html><head><title>three.js examples</title></head><body><a href="https://threejs.org">three.js</a></body></html>`,
		"manual/index.html":              `<title>manual</title><a href='https://threejs.org/docs/'>docs</a>`,
		"playground/index.html":          "<title>playground</title>",
		"files/favicon.ico":              "icon",
		"src/core/Object3D.js":           "class Object3D { constructor() { this.a = 1 < 2; } }\n",
		"src/Three.js":                   "export * from './core/Object3D.js';\n",
		"src/notes.txt":                  "skipped by extension filter\n",
	})
	return root
}

func newTestPipeline(t *testing.T, runner Runner) (*Pipeline, string, string) {
	t.Helper()
	checkout := newCheckout(t)
	serve := filepath.Join(t.TempDir(), "public")
	p, err := New(Config{CheckoutDir: checkout, ServeDir: serve, Build: testBuildConfig(t)}, WithRunner(runner))
	require.NoError(t, err)
	return p, checkout, serve
}
