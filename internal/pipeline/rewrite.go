package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// siteLinkDirs are the sections whose index pages link back to the upstream
// site root.
var siteLinkDirs = []string{"docs", "examples", "manual"}

const docsDir = "docs"

// Rewriter replaces upstream links in published HTML with links into the local
// artifact tree. Rewrite is pure and idempotent: rewritten links are relative
// and no longer match either pattern.
type Rewriter struct {
	siteLinks   []*regexp.Regexp
	sourceLinks *regexp.Regexp
	sourceDir   string
	sections    []string
}

// NewRewriter builds a Rewriter for the given upstream site (for example
// https://threejs.org) and source-browsing prefix (for example
// https://github.com/mrdoob/three.js/blob/). sections lists the directories
// published at the serve root; site links into them become local.
func NewRewriter(upstreamSite, browsePrefix, sourceDir string, sections []string) (*Rewriter, error) {
	u, err := url.Parse(upstreamSite)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream site %q", upstreamSite)
	}
	if browsePrefix == "" {
		return nil, fmt.Errorf("source browse prefix is required")
	}
	host := regexp.QuoteMeta(u.Host)
	rw := &Rewriter{
		sourceDir: strings.Trim(sourceDir, "/"),
		sections:  append([]string(nil), sections...),
		// One pattern per quote style; RE2 has no backreferences.
		siteLinks: []*regexp.Regexp{
			regexp.MustCompile(`(href\s*=\s*")(?:https?:)?//` + host + `(/[^"]*)?(")`),
			regexp.MustCompile(`(href\s*=\s*')(?:https?:)?//` + host + `(/[^']*)?(')`),
		},
		// Doc pages use [path] and [name] placeholders that the page script
		// fills in at runtime; they are kept whole inside the path.
		sourceLinks: regexp.MustCompile(regexp.QuoteMeta(browsePrefix) + `[^/\s"'<>\]]+/((?:[^\s"'<>\[\]#?]|\[\w+\])+)`),
	}
	return rw, nil
}

// Rewrite returns content with links rewritten for the file at rel, a
// slash-separated path relative to the serve root.
func (rw *Rewriter) Rewrite(rel string, content []byte) []byte {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	top, _, _ := strings.Cut(rel, "/")
	root := relativeRoot(rel)

	if path.Base(rel) == "index.html" && slices.Contains(siteLinkDirs, top) {
		for _, re := range rw.siteLinks {
			content = re.ReplaceAllFunc(content, func(m []byte) []byte {
				sub := re.FindSubmatch(m)
				target, ok := rw.siteTarget(root, string(sub[2]))
				if !ok {
					return m
				}
				return slices.Concat(sub[1], []byte(target), sub[3])
			})
		}
	}

	if top == docsDir && strings.HasSuffix(rel, ".html") {
		content = rw.sourceLinks.ReplaceAllFunc(content, func(m []byte) []byte {
			p := string(rw.sourceLinks.FindSubmatch(m)[1])
			if rw.sourceDir != "" && !strings.HasPrefix(p, rw.sourceDir+"/") {
				return m
			}
			return []byte(root + codeviewDir + "/" + p + ".html")
		})
	}
	return content
}

// siteTarget maps an upstream site path to a local relative link. Paths that
// do not land in a published section are left alone.
func (rw *Rewriter) siteTarget(root, p string) (string, bool) {
	if root == "" {
		root = "./"
	}
	trimmed := strings.TrimPrefix(p, "/")
	if trimmed == "" {
		return root, true
	}
	first, _, _ := strings.Cut(trimmed, "/")
	first, _, _ = strings.Cut(first, "#")
	first, _, _ = strings.Cut(first, "?")
	if slices.Contains(rw.sections, first) {
		return root + trimmed, true
	}
	return "", false
}

// RewriteTree applies Rewrite to every HTML file under the docs, examples and
// manual sections of serve, writing back only files that changed.
func (rw *Rewriter) RewriteTree(ctx context.Context, serve string) (int, error) {
	changed := 0
	for _, dir := range siteLinkDirs {
		base := filepath.Join(serve, dir)
		if !dirExists(base) {
			continue
		}
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
				return nil
			}
			rel, err := filepath.Rel(serve, p)
			if err != nil {
				return err
			}
			ok, err := rw.rewriteFile(p, filepath.ToSlash(rel))
			if err != nil {
				return &RewriteError{Path: p, Err: err}
			}
			if ok {
				changed++
			}
			return nil
		})
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func (rw *Rewriter) rewriteFile(p, rel string) (bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return false, err
	}
	out := rw.Rewrite(rel, data)
	if bytes.Equal(out, data) {
		return false, nil
	}
	return true, os.WriteFile(p, out, info.Mode().Perm())
}
