// Package gittest builds throwaway local repositories for tests that need a
// real remote.
package gittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Remote is a bare repository plus the work tree used to push into it.
type Remote struct {
	// Path is the bare repository, usable as a clone URL.
	Path     string
	workPath string
	work     *git.Repository
}

// NewRemote creates a bare repository seeded with one commit containing files.
func NewRemote(t testing.TB, files map[string]string) *Remote {
	t.Helper()
	dir := t.TempDir()
	bare := filepath.Join(dir, "remote.git")
	if _, err := git.PlainInit(bare, true); err != nil {
		t.Fatalf("init bare: %v", err)
	}
	workPath := filepath.Join(dir, "seed")
	work, err := git.PlainInit(workPath, false)
	if err != nil {
		t.Fatalf("init work: %v", err)
	}
	if _, err := work.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{bare}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}
	r := &Remote{Path: bare, workPath: workPath, work: work}
	r.Commit(t, files)
	return r
}

// Mirror creates a second bare repository with the same history as r.
func (r *Remote) Mirror(t testing.TB) *Remote {
	t.Helper()
	dir := t.TempDir()
	bare := filepath.Join(dir, "mirror.git")
	if _, err := git.PlainClone(bare, true, &git.CloneOptions{URL: r.Path}); err != nil {
		t.Fatalf("clone bare mirror: %v", err)
	}
	workPath := filepath.Join(dir, "seed")
	work, err := git.PlainClone(workPath, false, &git.CloneOptions{URL: bare})
	if err != nil {
		t.Fatalf("clone mirror work tree: %v", err)
	}
	return &Remote{Path: bare, workPath: workPath, work: work}
}

// Commit writes files, commits them and pushes to the bare repository.
func (r *Remote) Commit(t testing.TB, files map[string]string) plumbing.Hash {
	t.Helper()
	wt, err := r.work.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		full := filepath.Join(r.workPath, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit("update", &git.CommitOptions{
		Author:            &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := r.work.Push(&git.PushOptions{RemoteName: "origin"}); err != nil && err != git.NoErrAlreadyUpToDate {
		t.Fatalf("push: %v", err)
	}
	return hash
}

// HeadOf returns the HEAD hash of the repository at path.
func HeadOf(t testing.TB, path string) plumbing.Hash {
	t.Helper()
	repo, err := git.PlainOpen(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	ref, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	return ref.Hash()
}

// CommitCount returns the number of commits reachable from HEAD at path.
func CommitCount(t testing.TB, path string) int {
	t.Helper()
	repo, err := git.PlainOpen(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	ref, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	n := 0
	_ = iter.ForEach(func(*object.Commit) error { n++; return nil })
	return n
}
