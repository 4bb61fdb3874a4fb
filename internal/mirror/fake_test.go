package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fakeGit scripts clone and pull results per URL. Once a script runs out the
// operation succeeds.
type fakeGit struct {
	mu      sync.Mutex
	remotes map[string]string
	clones  map[string][]error
	pulls   map[string][]error
	block   bool
	calls   []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{remotes: map[string]string{}, clones: map[string][]error{}, pulls: map[string][]error{}}
}

func (f *fakeGit) next(script map[string][]error, url string) error {
	seq := script[url]
	if len(seq) == 0 {
		return nil
	}
	script[url] = seq[1:]
	return seq[0]
}

func (f *fakeGit) Clone(ctx context.Context, url, path string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "clone "+url)
	err := f.next(f.clones, url)
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return fmt.Errorf("clone interrupted: %w", ctx.Err())
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(path, ".git"), 0o750); err != nil {
		return err
	}
	f.mu.Lock()
	f.remotes[path] = url
	f.mu.Unlock()
	return nil
}

func (f *fakeGit) Pull(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := f.remotes[path]
	f.calls = append(f.calls, "pull "+url)
	return f.next(f.pulls, url)
}

func (f *fakeGit) RemoteURL(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.remotes[path]
	if !ok {
		return "", fmt.Errorf("no remote for %s", path)
	}
	return url, nil
}

func (f *fakeGit) SetRemoteURL(path, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "set-remote "+url)
	f.remotes[path] = url
	return nil
}

func (f *fakeGit) IsRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

func (f *fakeGit) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
