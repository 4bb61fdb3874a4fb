package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ClearResult lists the outcome of ClearAll.
type ClearResult struct {
	Cleared []string
	Failed  map[string]error
}

// ClearLog truncates <dir>/<name>.log. It reports false when the file does not exist.
func ClearLog(dir, name string) (bool, error) {
	name = strings.TrimSuffix(name, ".log")
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false, fmt.Errorf("invalid log name %q", name)
	}
	path := filepath.Join(dir, name+".log")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.Truncate(path, 0); err != nil {
		return true, fmt.Errorf("truncate %s: %w", path, err)
	}
	return true, nil
}

// ClearAll truncates every *.log file in dir. A missing dir clears nothing.
func ClearAll(dir string) (ClearResult, error) {
	res := ClearResult{Failed: map[string]error{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		if err := os.Truncate(filepath.Join(dir, e.Name()), 0); err != nil {
			res.Failed[e.Name()] = err
			continue
		}
		res.Cleared = append(res.Cleared, e.Name())
	}
	sort.Strings(res.Cleared)
	return res, nil
}
