package registry

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/conflict"
	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/loader"
	"github.com/freewebtopdf/logfilters/internal/settings"
)

const (
	// Group is the settings group holding the registry
	Group = "LoadedFilterSets"
	// Version is the registry layout this package understands
	Version = 1

	setsArray = "sets"
)

// Registry is the ordered list of sources. A source id is its position and
// is only valid until sources are removed.
type Registry struct {
	sources []*Source
	index   map[string]int
	auto    *loader.DirLoader
	logger  zerolog.Logger

	// unknownVersion is set when the stored group has a layout this
	// package cannot read; Save then leaves it untouched
	unknownVersion bool
	entryErrors    []domain.LoadError
}

// New creates an empty registry that discovers filter files in autoDir
func New(autoDir string) *Registry {
	return &Registry{
		index:  make(map[string]int),
		auto:   loader.NewDirLoader(autoDir),
		logger: log.With().Str("component", "registry").Logger(),
	}
}

// AutoDir returns the auto-discovery directory
func (r *Registry) AutoDir() string {
	return r.auto.Scanner().Dir()
}

// IsAuto reports whether filename would be discovered in the auto directory
func (r *Registry) IsAuto(filename string) bool {
	return r.auto.Scanner().Contains(filename)
}

// Len returns the number of sources
func (r *Registry) Len() int {
	return len(r.sources)
}

// Source returns the source with the given id, or nil
func (r *Registry) Source(id int) *Source {
	if id < 0 || id >= len(r.sources) {
		return nil
	}
	return r.sources[id]
}

// Find returns the id of the source named filename
func (r *Registry) Find(filename string) (int, bool) {
	id, ok := r.index[filename]
	return id, ok
}

// Summaries lists every source in id order
func (r *Registry) Summaries() []Summary {
	out := make([]Summary, len(r.sources))
	for i, s := range r.sources {
		out[i] = Summary{
			ID:        i,
			Name:      s.Name,
			RuleCount: s.Rules.Len(),
			Missing:   s.Missing,
			Auto:      s.Auto,
			Dirty:     s.dirty,
		}
	}
	return out
}

func (r *Registry) add(s *Source) int {
	r.sources = append(r.sources, s)
	id := len(r.sources) - 1
	r.index[s.Name] = id
	return id
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.sources))
	for i, s := range r.sources {
		r.index[s.Name] = i
	}
}

// Clear removes every source
func (r *Registry) Clear() {
	r.sources = nil
	r.index = make(map[string]int)
	r.unknownVersion = false
	r.entryErrors = nil
}

// UnknownVersion reports whether the last Retrieve skipped a stored registry
// of an unknown version
func (r *Registry) UnknownVersion() bool {
	return r.unknownVersion
}

// LoadErrors lists the filter files that could be read neither from the
// auto directory nor from the stored registry during the last Retrieve.
// Files that do not exist are not load errors.
func (r *Registry) LoadErrors() []domain.LoadError {
	errs := r.auto.GetLoadErrors()
	return append(errs, r.entryErrors...)
}

// Retrieve replaces the registry with the one stored in s, rereading every
// file from disk, then appends the files of the auto directory. When a file
// differs from its stored copy, decider chooses which version to keep.
// Unreadable files become missing sources; nothing here is fatal except a
// cancelled context or an unreadable auto directory.
func (r *Registry) Retrieve(ctx context.Context, s *settings.Settings, decider conflict.Decider) error {
	r.Clear()

	s.BeginGroup(Group)
	raw, hasVersion := s.Value("version")
	switch {
	case !hasVersion:
	case s.Int("version", 0) != Version:
		r.unknownVersion = true
		r.logger.Error().
			Str("file", s.FileName()).
			Str("version", raw).
			Str("code", domain.ErrSchemaMismatch).
			Msg("Unknown version of LoadedFilterSets, ignoring it")
	default:
		size := s.BeginReadArray(setsArray)
		for i := 0; i < size; i++ {
			select {
			case <-ctx.Done():
				s.EndArray()
				s.EndGroup()
				return ctx.Err()
			default:
			}
			s.SetArrayIndex(i)
			r.retrieveEntry(s, decider)
		}
		s.EndArray()
	}
	s.EndGroup()

	files, autoErrors, err := r.auto.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, ok := r.index[f.Path]; ok {
			continue
		}
		var src *Source
		if f.Err != nil {
			r.logger.Warn().Err(f.Err).Str("file", f.Path).Msg("Auto-discovered filter file could not be loaded")
			src = NewMissingSource(f.Path)
		} else {
			src = NewSource(f.Path, f.Rules)
		}
		src.Auto = true
		r.add(src)
	}

	r.logger.Debug().
		Int("sources", len(r.sources)).
		Int("load_errors", len(autoErrors)+len(r.entryErrors)).
		Msg("Loaded filter sets retrieved")
	return nil
}

// retrieveEntry loads the array element the settings cursor is on
func (r *Registry) retrieveEntry(s *settings.Settings, decider conflict.Decider) {
	filename := s.String("filename", "")
	if filename == "" {
		r.logger.Warn().Str("group", s.Group()).Msg("Loaded filter set without filename, skipping it")
		return
	}
	if _, dup := r.index[filename]; dup {
		r.logger.Warn().Str("file", filename).Msg("Loaded filter set listed twice, skipping duplicate")
		return
	}

	var persisted []domain.Rule
	hasSnapshot := false
	records, err := loader.ReadFilterSet(s)
	switch {
	case err == nil:
		persisted = loader.SourceRules(filename, records)
		hasSnapshot = true
	case !errors.Is(err, loader.ErrNoFilterSet):
		r.logger.Error().Err(err).Str("file", filename).Msg("Stored copy of filter set is unreadable, ignoring it")
	}

	fresh, err := loader.ReadFilterFile(filename)
	if err != nil {
		if loader.IsMissing(err) {
			r.logger.Warn().
				Str("file", filename).
				Str("code", domain.ErrSourceMissing).
				Msg("Filter file not found, marking it missing")
		} else {
			r.logger.Error().
				Err(err).
				Str("file", filename).
				Str("code", domain.Code(err)).
				Msg("Filter file is unreadable, marking it missing")
			r.entryErrors = append(r.entryErrors, domain.LoadError{FilePath: filename, Error: err.Error()})
		}
		r.add(NewMissingSource(filename))
		return
	}

	if hasSnapshot && !conflict.Equal(persisted, fresh) {
		change := conflict.NewExternalChange(filename, persisted, fresh)
		if decider == nil || decider.Decide(change) {
			r.logger.Info().Str("file", filename).Msg("Filter file changed on disk, reloading it")
		} else {
			r.logger.Info().Str("file", filename).Msg("Filter file changed on disk, keeping saved copy")
			fresh = persisted
		}
	}

	r.add(NewSource(filename, fresh))
}

// Save writes the registry to s. Sources discovered in the auto directory
// are left out; they are found again on the next Retrieve. A stored
// registry of an unknown version is kept as it is.
func (r *Registry) Save(s *settings.Settings) {
	if r.unknownVersion {
		r.logger.Warn().
			Str("file", s.FileName()).
			Str("code", domain.ErrSchemaMismatch).
			Msg("Not overwriting LoadedFilterSets of an unknown version")
		return
	}

	s.BeginGroup(Group)
	defer s.EndGroup()

	s.Remove("")
	s.SetValue("version", Version)

	s.BeginWriteArray(setsArray)
	written := 0
	for _, src := range r.sources {
		if r.IsAuto(src.Name) {
			continue
		}
		s.SetArrayIndex(written)
		s.SetValue("filename", src.Name)
		loader.WriteFilterSet(s, loader.Records(src.Rules.Rules()), false)
		written++
	}
	s.EndArray()
}

// Import registers the filter file at path. A file that is already
// registered is not read again and its id is returned.
func (r *Registry) Import(path string) (int, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if id, ok := r.index[path]; ok {
		return id, nil
	}

	rules, err := loader.ReadFilterFile(path)
	if err != nil {
		return -1, err
	}

	id := r.add(NewSource(path, rules))
	r.logger.Info().Str("file", path).Int("source", id).Int("rules", len(rules)).Msg("Filter file imported")
	return id, nil
}

// Resolve returns the id of the source named filename, loading the file if
// it is not registered yet or adding a missing placeholder when it cannot
// be read
func (r *Registry) Resolve(filename string) int {
	if id, ok := r.index[filename]; ok {
		return id
	}

	rules, err := loader.ReadFilterFile(filename)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("file", filename).
			Str("code", domain.ErrSourceMissing).
			Msg("Origin of a filter is not available, marking it missing")
		return r.add(NewMissingSource(filename))
	}
	src := NewSource(filename, rules)
	src.Auto = r.IsAuto(filename)
	return r.add(src)
}

// Remove drops the source with the given id; later ids shift down by one
func (r *Registry) Remove(id int) bool {
	if id < 0 || id >= len(r.sources) {
		return false
	}
	r.sources = append(r.sources[:id], r.sources[id+1:]...)
	r.reindex()
	return true
}

// WriteDirty rewrites every changed source that has a file on disk
func (r *Registry) WriteDirty(ctx context.Context) error {
	for _, src := range r.sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !src.dirty || src.Missing {
			continue
		}
		if err := loader.WriteFilterFile(src.Name, src.Rules.Rules()); err != nil {
			return err
		}
		src.dirty = false
		r.logger.Info().Str("file", src.Name).Msg("Filter file saved")
	}
	return nil
}
