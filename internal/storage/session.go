package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/settings"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

// Session is a private working copy of the persisted filters. Nothing is
// written until Commit.
type Session struct {
	ID      string
	Started time.Time

	mu       sync.Mutex
	store    *Store
	settings *settings.Settings
	set      *workingset.WorkingSet
	closed   bool
}

func errSessionClosed() error {
	return domain.NewAppError(domain.ErrNoSession, "Editing session is closed", 409, nil)
}

// Do runs fn with exclusive access to the working set
func (s *Session) Do(fn func(set *workingset.WorkingSet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed()
	}
	return fn(s.set)
}

// Commit writes changed filter files, the registry and the working set,
// then closes the session. On failure the session stays open. A session
// over filters of an unknown version cannot be committed.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed()
	}

	if s.set.UnknownVersion() {
		s.mu.Unlock()
		return domain.NewAppError(
			domain.ErrSchemaMismatch,
			"Stored filters have an unknown version and cannot be replaced",
			409,
			map[string]any{"session_id": s.ID, "file": s.settings.FileName()},
		).WithContext(ctx, "commit")
	}

	reg := s.set.Registry()
	if err := reg.WriteDirty(ctx); err != nil {
		s.mu.Unlock()
		return domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to save filter files",
			500,
			err,
			map[string]any{"session_id": s.ID},
		).WithContext(ctx, "commit")
	}

	reg.Save(s.settings)
	s.set.Save(s.settings)
	if err := s.settings.Sync(); err != nil {
		s.mu.Unlock()
		return domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to write settings",
			500,
			err,
			map[string]any{"session_id": s.ID, "file": s.settings.FileName()},
		).WithContext(ctx, "commit")
	}

	s.closed = true
	rules := s.set.Len()
	s.mu.Unlock()

	log.Info().
		Str("session_id", s.ID).
		Int("rules", rules).
		Int("sources", reg.Len()).
		Dur("duration", time.Since(s.Started)).
		Msg("Editing session committed")

	for _, hook := range s.store.finish(s, true) {
		hook(ctx)
	}
	return nil
}

// Cancel discards the session
func (s *Session) Cancel() {
	s.mu.Lock()
	wasOpen := !s.closed
	s.closed = true
	s.mu.Unlock()

	if wasOpen {
		s.store.finish(s, false)
		log.Debug().Str("session_id", s.ID).Msg("Editing session cancelled")
	}
}
