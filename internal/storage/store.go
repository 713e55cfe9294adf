// Package storage owns the persisted settings store and hands out editing
// sessions over it, one at a time.
package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/conflict"
	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/legacy"
	"github.com/freewebtopdf/logfilters/internal/loader"
	"github.com/freewebtopdf/logfilters/internal/registry"
	"github.com/freewebtopdf/logfilters/internal/settings"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

// StoreConfig holds configuration for the Store
type StoreConfig struct {
	SettingsPath string // Settings file; its extension selects the format
	AutoDir      string // Directory whose filter files are loaded in every session
}

// Store implements the RuleProvider interface over the settings file
type Store struct {
	mu         sync.RWMutex
	config     StoreConfig
	decider    conflict.Decider
	active     *Session
	commits    int64
	lastCommit time.Time
	onCommit   []func(ctx context.Context)
	loadErrors []domain.LoadError // from the last Begin
}

// NewStore creates a Store. decider answers the reload question for filter
// files that changed on disk; nil always reloads.
func NewStore(config StoreConfig, decider conflict.Decider) *Store {
	if decider == nil {
		decider = conflict.PolicyAccept
	}
	return &Store{config: config, decider: decider}
}

// Config returns the store configuration
func (s *Store) Config() StoreConfig {
	return s.config
}

// OnCommit registers fn to run after every successful commit
func (s *Store) OnCommit(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// Begin opens an editing session. The registry is retrieved before the
// working set, which resolves its origins against it.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Begin cancelled",
			408,
			ctx.Err(),
			map[string]any{"operation": "begin"},
		)
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, domain.NewAppError(
			domain.ErrSessionActive,
			"Another editing session is open",
			409,
			map[string]any{"session_id": s.active.ID, "started": s.active.Started},
		).WithContext(ctx, "begin")
	}

	st, err := settings.Open(s.config.SettingsPath)
	if err != nil {
		return nil, domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to open settings",
			500,
			err,
			map[string]any{"file": s.config.SettingsPath},
		).WithContext(ctx, "begin")
	}

	reg := registry.New(s.config.AutoDir)
	if err := reg.Retrieve(ctx, st, s.decider); err != nil {
		return nil, domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to load filter sources",
			500,
			err,
			map[string]any{"auto_dir": s.config.AutoDir},
		).WithContext(ctx, "begin")
	}

	set := workingset.New(reg)
	if err := set.Retrieve(st); err != nil {
		return nil, domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to load filters",
			500,
			err,
			map[string]any{"file": s.config.SettingsPath},
		).WithContext(ctx, "begin")
	}

	session := &Session{
		ID:       uuid.New().String(),
		Started:  time.Now(),
		store:    s,
		settings: st,
		set:      set,
	}
	s.active = session
	s.loadErrors = reg.LoadErrors()

	log.Debug().
		Str("session_id", session.ID).
		Int("rules", set.Len()).
		Int("sources", reg.Len()).
		Int("load_errors", len(s.loadErrors)).
		Bool("unknown_version", set.UnknownVersion() || reg.UnknownVersion()).
		Msg("Editing session started")
	return session, nil
}

// Active returns the open session
func (s *Store) Active() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil, domain.NewAppError(domain.ErrNoSession, "No editing session is open", 409, nil)
	}
	return s.active, nil
}

// LoadErrors returns the filter files that failed to load when the last
// session began
func (s *Store) LoadErrors() []domain.LoadError {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LoadError, len(s.loadErrors))
	copy(out, s.loadErrors)
	return out
}

// finish closes session if it is the active one
func (s *Store) finish(session *Session, committed bool) []func(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == session {
		s.active = nil
	}
	if !committed {
		return nil
	}
	s.commits++
	s.lastCommit = time.Now()
	hooks := make([]func(ctx context.Context), len(s.onCommit))
	copy(hooks, s.onCommit)
	return hooks
}

// CommittedRules reads the persisted working set without opening a
// session. A store still in the legacy layout is decoded but not migrated.
func (s *Store) CommittedRules(ctx context.Context) ([]domain.Rule, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Read cancelled",
			408,
			ctx.Err(),
			map[string]any{"operation": "committed_rules"},
		)
	default:
	}

	st, err := settings.Open(s.config.SettingsPath)
	if err != nil {
		return nil, domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to open settings",
			500,
			err,
			map[string]any{"file": s.config.SettingsPath},
		).WithContext(ctx, "committed_rules")
	}

	if loader.HasFilterSet(st) {
		records, err := loader.ReadFilterSet(st)
		if err != nil {
			log.Error().Err(err).Str("file", s.config.SettingsPath).Msg("Committed filters have an unknown version")
			return []domain.Rule{}, nil
		}
		return loader.Rules(records), nil
	}

	if data, ok := st.Bytes(legacy.Key); ok {
		rules, err := legacy.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("file", s.config.SettingsPath).Msg("Legacy filters are unreadable")
			return []domain.Rule{}, nil
		}
		return rules, nil
	}

	return []domain.Rule{}, nil
}

// HealthCheck performs a health check on the settings store
func (s *Store) HealthCheck(ctx context.Context) domain.HealthStatus {
	s.mu.RLock()
	sessionActive := s.active != nil
	loadErrors := len(s.loadErrors)
	s.mu.RUnlock()

	now := time.Now()
	status := domain.HealthStatusHealthy
	message := "Storage is operating normally"
	details := map[string]any{
		"settings_path":  s.config.SettingsPath,
		"auto_dir":       s.config.AutoDir,
		"session_active": sessionActive,
		"load_errors":    loadErrors,
	}

	if _, err := settings.Open(s.config.SettingsPath); err != nil {
		status = domain.HealthStatusUnhealthy
		message = "Settings file is not readable"
		details["error"] = err.Error()
		return domain.HealthStatus{
			Status:    status,
			Message:   message,
			Details:   details,
			Timestamp: now,
		}
	}

	if s.config.AutoDir != "" {
		if info, err := os.Stat(s.config.AutoDir); err == nil && !info.IsDir() {
			status = domain.HealthStatusDegraded
			message = "Auto directory is not a directory"
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			status = domain.HealthStatusDegraded
			message = "Auto directory is not accessible"
			details["error"] = err.Error()
		}
	}

	if status == domain.HealthStatusHealthy && loadErrors > 0 {
		status = domain.HealthStatusDegraded
		message = "Some filter files failed to load"
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}

// GetStats returns storage statistics
func (s *Store) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	stats := map[string]any{
		"settings_path":  s.config.SettingsPath,
		"auto_dir":       s.config.AutoDir,
		"session_active": s.active != nil,
		"commits":        s.commits,
		"load_errors":    len(s.loadErrors),
	}
	if !s.lastCommit.IsZero() {
		stats["last_commit"] = s.lastCommit
	}
	s.mu.RUnlock()

	if rules, err := s.CommittedRules(ctx); err == nil {
		stats["committed_rules"] = len(rules)
	}
	return stats
}
