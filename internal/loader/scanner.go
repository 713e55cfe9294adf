package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
)

// AutoPattern selects the files of the auto-discovery directory
const AutoPattern = "*.conf"

// Scanner lists filter files in one directory. Subdirectories are not
// descended into; hidden files are included.
type Scanner struct {
	dir     string
	pattern string
}

// NewScanner creates a Scanner for dir using AutoPattern
func NewScanner(dir string) *Scanner {
	return &Scanner{dir: dir, pattern: AutoPattern}
}

// Dir returns the scanned directory
func (s *Scanner) Dir() string {
	return s.dir
}

// Scan returns the matching files in name order. A missing directory yields
// no files.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	if s.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if entry.IsDir() || !s.matchName(entry.Name()) {
			continue
		}
		// Symlinks are followed; anything that is not a regular file is skipped
		path := filepath.Join(s.dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}

	sort.Strings(files)
	return files, nil
}

// Contains reports whether path would be discovered by Scan: it lives
// directly in the directory and its name matches the pattern
func (s *Scanner) Contains(path string) bool {
	if s.dir == "" || path == "" {
		return false
	}
	return sameDir(filepath.Dir(path), s.dir) && s.matchName(filepath.Base(path))
}

func (s *Scanner) matchName(name string) bool {
	ok, err := filepath.Match(s.pattern, name)
	return err == nil && ok
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
