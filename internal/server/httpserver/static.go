package httpserver

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"

	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
)

// noListingFS hides directories that have no index.html so the file server
// never renders a directory listing.
type noListingFS struct {
	http.FileSystem
}

func (fsys noListingFS) Open(name string) (http.File, error) {
	f, err := fsys.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}
	index, err := fsys.FileSystem.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	_ = index.Close()
	return f, nil
}

// staticHandler serves the artifact tree and answers 503 until the first
// build has published a root index.
func (s *Server) staticHandler() http.Handler {
	files := http.FileServer(noListingFS{http.Dir(s.opts.ServeDir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.errorAdapter.WriteErrorResponse(w, r, ferrors.ValidationError("method not allowed").
				WithContext("method", r.Method).
				Build())
			return
		}
		if r.URL.Path == "/" {
			if _, err := os.Stat(filepath.Join(s.opts.ServeDir, "index.html")); errors.Is(err, os.ErrNotExist) {
				s.errorAdapter.WriteErrorResponse(w, r, ferrors.RuntimeError("site has not been built yet").
					Transient().
					Build())
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}
