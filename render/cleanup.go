package render

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Janitor removes render work directories once they are older than MaxAge.
type Janitor struct {
	Root   string
	MaxAge time.Duration
}

// Sweep deletes stale work directories and reports how many were removed.
func (j Janitor) Sweep() (int, error) {
	root := j.Root
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-j.MaxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), WorkDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
