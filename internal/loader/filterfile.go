package loader

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/settings"
)

// ReadFilterFile loads a standalone filter file. Both the outer version and
// the FilterSet version must be current. Stored origin fields are dropped.
func ReadFilterFile(path string) ([]domain.Rule, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewAppErrorWithCause(
				domain.ErrSourceMissing,
				"Filter file not found",
				404,
				err,
				map[string]any{"file": path},
			)
		}
		return nil, domain.NewAppErrorWithCause(
			domain.ErrImportFailed,
			"Filter file is not accessible",
			500,
			err,
			map[string]any{"file": path},
		)
	}

	s, err := settings.Open(path)
	if err != nil {
		return nil, domain.NewAppErrorWithCause(
			domain.ErrImportFailed,
			"Failed to read filter file",
			500,
			err,
			map[string]any{"file": path},
		)
	}

	if version := s.Int("version", 0); version != FileVersion {
		raw, _ := s.Value("version")
		return nil, domain.NewAppError(
			domain.ErrSchemaMismatch,
			"Unknown filter file version",
			422,
			map[string]any{"file": path, "version": raw},
		)
	}

	records, err := ReadFilterSet(s)
	if err != nil {
		if errors.Is(err, ErrNoFilterSet) {
			return nil, domain.NewAppError(
				domain.ErrSchemaMismatch,
				"Filter file holds no FilterSet",
				422,
				map[string]any{"file": path},
			)
		}
		return nil, err
	}

	return SourceRules(path, records), nil
}

// SourceRules returns the rules of a source's records. Rules inside a source
// never carry an origin of their own, so any stored origin or offset is
// reported and dropped.
func SourceRules(filename string, records []Record) []domain.Rule {
	for i, rec := range records {
		if rec.Origin != "" {
			log.Warn().
				Str("file", filename).
				Int("index", i).
				Str("pattern", rec.Rule.Pattern).
				Str("origin", rec.Origin).
				Str("code", domain.ErrConflictOrigin).
				Msg("Filter loaded from a filter file has its own origin, ignoring it")
		}
		if rec.Offset >= 0 {
			log.Warn().
				Str("file", filename).
				Int("index", i).
				Str("pattern", rec.Rule.Pattern).
				Int("loaded_offset", rec.Offset).
				Str("code", domain.ErrConflictOrigin).
				Msg("Filter loaded from a filter file has a loaded offset, ignoring it")
		}
	}
	return Rules(records)
}

// WriteFilterFile writes rules to path as a standalone filter file,
// replacing any existing content
func WriteFilterFile(path string, rules []domain.Rule) error {
	s, err := settings.Create(path)
	if err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrExportFailed,
			"Unsupported filter file name",
			422,
			err,
			map[string]any{"file": path},
		)
	}

	s.SetValue("version", FileVersion)
	WriteFilterSet(s, Records(rules), false)

	if err := s.Sync(); err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrExportFailed,
			"Failed to write filter file",
			500,
			err,
			map[string]any{"file": path},
		)
	}
	return nil
}

// IsMissing reports whether err means the file does not exist
func IsMissing(err error) bool {
	var appErr *domain.AppError
	return errors.As(err, &appErr) && appErr.Code == domain.ErrSourceMissing
}
