package loader

import (
	"context"
	"sync"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

// File is one filter file read by a DirLoader. Err is set when the file
// could not be read or parsed; Rules is then empty.
type File struct {
	Path  string
	Rules []domain.Rule
	Err   error
}

// DirLoader loads every filter file of the auto-discovery directory
type DirLoader struct {
	scanner    *Scanner
	mu         sync.RWMutex
	loadErrors []domain.LoadError
}

// NewDirLoader creates a DirLoader for dir
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{
		scanner:    NewScanner(dir),
		loadErrors: make([]domain.LoadError, 0),
	}
}

// Scanner returns the underlying directory scanner
func (l *DirLoader) Scanner() *Scanner {
	return l.scanner
}

// LoadAll reads every discovered file in scan order. Files that fail to load
// are still returned, with Err set, and are also reported as load errors.
func (l *DirLoader) LoadAll(ctx context.Context) ([]File, []domain.LoadError, error) {
	paths, err := l.scanner.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}

	files := make([]File, 0, len(paths))
	var loadErrors []domain.LoadError

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		rules, err := ReadFilterFile(path)
		if err != nil {
			loadErrors = append(loadErrors, domain.LoadError{FilePath: path, Error: err.Error()})
		}
		files = append(files, File{Path: path, Rules: rules, Err: err})
	}

	l.mu.Lock()
	l.loadErrors = loadErrors
	l.mu.Unlock()

	return files, loadErrors, nil
}

// GetLoadErrors returns errors from the last load operation
func (l *DirLoader) GetLoadErrors() []domain.LoadError {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.LoadError, len(l.loadErrors))
	copy(result, l.loadErrors)
	return result
}
