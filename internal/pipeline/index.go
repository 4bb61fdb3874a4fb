package pipeline

import (
	"bytes"
	"errors"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const siteTitle = "three.js"

type section struct {
	Dir   string
	Title string
}

// generateIndex writes serve/index.html: the checkout README rendered to HTML
// and a navigation entry for every published section present in serve.
func generateIndex(checkout, serve string, dirs []string, minimal bool, now time.Time) error {
	readme, err := renderReadme(filepath.Join(checkout, "README.md"))
	if err != nil {
		return err
	}

	var sections []section
	for _, dir := range append(append([]string(nil), dirs...), codeviewDir) {
		if !dirExists(filepath.Join(serve, dir)) {
			continue
		}
		sections = append(sections, section{Dir: dir, Title: sectionTitle(serve, dir)})
	}

	var buf bytes.Buffer
	err = rootIndexTmpl.Execute(&buf, struct {
		Title     string
		Sections  []section
		Readme    template.HTML
		Minimal   bool
		Generated string
	}{
		Title:     siteTitle,
		Sections:  sections,
		Readme:    readme,
		Minimal:   minimal,
		Generated: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(serve, "index.html"), buf.Bytes(), 0o644)
}

// renderReadme converts the checkout README to HTML. A missing README yields
// an empty body.
func renderReadme(path string) (template.HTML, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return "", err
	}
	// goldmark omits raw HTML unless WithUnsafe is set.
	return template.HTML(buf.String()), nil //nolint:gosec // sanitized by goldmark
}

// sectionTitle prefers the <title> of dir/index.html, else a title-cased
// directory name.
func sectionTitle(serve, dir string) string {
	f, err := os.Open(filepath.Join(serve, dir, "index.html"))
	if err == nil {
		defer func() { _ = f.Close() }()
		if t := extractTitle(f); t != "" {
			return t
		}
	}
	return cases.Title(language.English).String(dir)
}

func extractTitle(r io.Reader) string {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != atom.Title {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.TrimSpace(string(z.Text()))
			}
			return ""
		}
	}
}
