package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const codeviewDir = "codeview"

// generateCodeview writes one HTML page per source file under
// checkout/sourceDir plus an index, into serve/codeview. Pages are addressed by
// their checkout-relative path so that codeview/src/core/Object3D.js.html views
// src/core/Object3D.js.
func generateCodeview(ctx context.Context, checkout, serve, sourceDir string, exts []string) (int, error) {
	srcRoot := filepath.Join(checkout, sourceDir)
	if !dirExists(srcRoot) {
		return 0, fmt.Errorf("codeview source %s: %w", srcRoot, fs.ErrNotExist)
	}
	outRoot := filepath.Join(serve, codeviewDir)
	if err := os.RemoveAll(outRoot); err != nil {
		return 0, err
	}

	var files []string
	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !hasExtension(path, exts) {
			return nil
		}
		rel, err := filepath.Rel(checkout, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if err := writeCodeviewPage(path, outRoot, rel); err != nil {
			return fmt.Errorf("codeview %s: %w", rel, err)
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return 0, err
	}

	slices.Sort(files)
	f, err := os.Create(filepath.Join(outRoot, "index.html"))
	if err != nil {
		return 0, err
	}
	if err := codeviewIndexTmpl.Execute(f, struct{ Files []string }{files}); err != nil {
		_ = f.Close()
		return 0, err
	}
	return len(files), f.Close()
}

func writeCodeviewPage(src, outRoot, rel string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	page := filepath.Join(outRoot, filepath.FromSlash(rel)+".html")
	if err := os.MkdirAll(filepath.Dir(page), 0o755); err != nil {
		return err
	}
	f, err := os.Create(page)
	if err != nil {
		return err
	}
	err = codeviewPageTmpl.Execute(f, struct {
		Path   string
		Root   string
		Source string
	}{
		Path:   rel,
		Root:   relativeRoot(codeviewDir + "/" + rel),
		Source: string(data),
	})
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func hasExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(exts, ext)
}

// relativeRoot returns the prefix that leads from a slash-separated,
// serve-root-relative file path back to the serve root: "" for index.html,
// "../" for docs/index.html.
func relativeRoot(rel string) string {
	depth := strings.Count(strings.Trim(rel, "/"), "/")
	return strings.Repeat("../", depth)
}
