package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

const remoteName = "origin"

// Options configure a Client.
type Options struct {
	// Branch to track; empty follows the remote default branch.
	Branch string
	// ShallowDepth limits clone and fetch history when > 0.
	ShallowDepth int
	Logger       *slog.Logger
}

// Client handles Git operations against a single working copy at a time.
type Client struct {
	branch string
	depth  int
	logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	depth := max(opts.ShallowDepth, 0)
	return &Client{branch: opts.Branch, depth: depth, logger: logger}
}

// Clone clones url into path. path must be absent or empty.
func (c *Client) Clone(ctx context.Context, url, path string) error {
	c.logger.Debug("Cloning repository", logfields.URL(url), logfields.Path(path), slog.String("branch", c.branch))

	opts := &git.CloneOptions{URL: url, RemoteName: remoteName, Tags: git.NoTags}
	if c.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(c.branch)
		opts.SingleBranch = true
	}
	if c.depth > 0 {
		opts.Depth = c.depth
	}

	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil {
		return classify("clone", url, err)
	}
	if ref, herr := repo.Head(); herr == nil {
		c.logger.Info("Repository cloned", logfields.URL(url), logfields.Commit(shortHash(ref.Hash())), logfields.Path(path))
	}
	return nil
}

// Pull fetches origin and hard-resets the tracked branch to the fetched ref.
// Local modifications to tracked files are discarded.
func (c *Client) Pull(ctx context.Context, path string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	url := remoteURLOf(repo)

	fetchOpts := &git.FetchOptions{
		RemoteName: remoteName,
		Tags:       git.NoTags,
		Force:      true,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	if c.branch != "" {
		fetchOpts.RefSpecs = []ggitcfg.RefSpec{ggitcfg.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", c.branch, c.branch))}
	}
	if c.depth > 0 {
		fetchOpts.Depth = c.depth
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify("fetch", url, err)
	}

	branch := c.resolveTargetBranch(repo)
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	localRef, remoteRef, err := checkoutAndGetRefs(repo, wt, branch)
	if err != nil {
		return err
	}

	before := localRef.Hash()
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to %s: %w", remoteRef.Name().Short(), err)
	}

	switch ff, ancErr := isAncestor(repo, before, remoteRef.Hash()); {
	case before == remoteRef.Hash():
		c.logger.Info("Repository already up-to-date", slog.String("branch", branch), logfields.Commit(shortHash(before)))
	case ancErr != nil:
		// Shallow history can hide the merge base.
		c.logger.Info("Repository updated", slog.String("branch", branch), logfields.Commit(shortHash(remoteRef.Hash())))
	case ff:
		c.logger.Info("Fast-forwarded repository", slog.String("branch", branch), slog.String("from", shortHash(before)), slog.String("to", shortHash(remoteRef.Hash())))
	default:
		c.logger.Warn("Local branch diverged from remote, reset to remote", slog.String("branch", branch), slog.String("from", shortHash(before)), slog.String("to", shortHash(remoteRef.Hash())))
	}
	return nil
}

// IsRepository reports whether path holds repository metadata go-git can open.
func (c *Client) IsRepository(path string) bool {
	if _, err := os.Stat(filepath.Join(path, git.GitDirName)); err != nil {
		return false
	}
	_, err := git.PlainOpen(path)
	return err == nil
}

// RemoteURL returns the first URL of origin.
func (c *Client) RemoteURL(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", remoteName, err)
	}
	if urls := remote.Config().URLs; len(urls) > 0 {
		return urls[0], nil
	}
	return "", fmt.Errorf("remote %s has no url", remoteName)
}

// SetRemoteURL points origin at url, creating it if missing.
func (c *Client) SetRemoteURL(path, url string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	rc, ok := cfg.Remotes[remoteName]
	if !ok {
		rc = &ggitcfg.RemoteConfig{
			Name:  remoteName,
			Fetch: []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		}
		cfg.Remotes[remoteName] = rc
	}
	rc.URLs = []string{url}
	if err := repo.Storer.SetConfig(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.logger.Info("Remote url updated", logfields.URL(url), logfields.Path(path))
	return nil
}

// Head returns the abbreviated HEAD commit.
func (c *Client) Head(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	return shortHash(ref.Hash()), nil
}

// resolveTargetBranch follows: configured branch, current HEAD branch,
// origin/HEAD target, then "main".
func (c *Client) resolveTargetBranch(repo *git.Repository) string {
	if c.branch != "" {
		return c.branch
	}
	if headRef, err := repo.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short()
	}
	if ref, err := repo.Reference(plumbing.NewRemoteHEADReferenceName(remoteName), false); err == nil && ref.Target() != "" {
		return ref.Target().Short()
	}
	return "main"
}

// checkoutAndGetRefs ensures the local branch exists and is checked out, returning both local and remote references.
func checkoutAndGetRefs(repo *git.Repository, wt *git.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localName := plumbing.NewBranchReferenceName(branch)
	remoteRef, err = repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref %s: %w", branch, err)
	}
	localRef, lerr := repo.Reference(localName, true)
	if lerr != nil {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: localName, Hash: remoteRef.Hash(), Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
		localRef, err = repo.Reference(localName, true)
		if err != nil {
			return nil, nil, fmt.Errorf("local ref %s: %w", branch, err)
		}
		return localRef, remoteRef, nil
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: localName, Force: true}); err != nil {
		return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
	}
	return localRef, remoteRef, nil
}

// isAncestor walks b's history looking for a. Shallow histories may end early.
func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

func remoteURLOf(repo *git.Repository) string {
	if remote, err := repo.Remote(remoteName); err == nil && len(remote.Config().URLs) > 0 {
		return remote.Config().URLs[0]
	}
	return ""
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:8]
}
