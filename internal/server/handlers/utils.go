// Package handlers implements the JSON endpoints of the sync server.
package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// writeJSON encodes v into a buffer first so a failed encode never sends a
// partial body.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed writing JSON response body", logfields.Error(err))
		return err
	}
	return nil
}

// writeJSONPretty indents the body when ?pretty=1 or ?pretty=true.
func writeJSONPretty(w http.ResponseWriter, r *http.Request, status int, v any) error {
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(status)
			_, err = w.Write(append(b, '\n'))
			return err
		}
	}
	return writeJSON(w, status, v)
}
