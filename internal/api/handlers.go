package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/storage"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

// maxBatchLines bounds the lines accepted by one batch match request
const maxBatchLines = 1000

// SessionManager hands out editing sessions over the persisted filters
type SessionManager interface {
	Begin(ctx context.Context) (*storage.Session, error)
	Active() (*storage.Session, error)
}

// Handlers contains all HTTP handlers for the log filter API
type Handlers struct {
	matcher       domain.LineMatcher
	provider      domain.RuleProvider
	sessions      SessionManager
	cache         domain.CacheManager
	validator     domain.Validator
	healthChecker domain.HealthChecker
}

// NewHandlers creates a new instance of API handlers
func NewHandlers(matcher domain.LineMatcher, provider domain.RuleProvider, sessions SessionManager, cache domain.CacheManager, validator domain.Validator, healthChecker domain.HealthChecker) *Handlers {
	return &Handlers{
		matcher:       matcher,
		provider:      provider,
		sessions:      sessions,
		cache:         cache,
		validator:     validator,
		healthChecker: healthChecker,
	}
}

// MatchRequest represents the request payload for the match endpoint
type MatchRequest struct {
	Line string `json:"line"`
}

// BatchMatchRequest represents the request payload for the batch endpoint
type BatchMatchRequest struct {
	Lines []string `json:"lines"`
}

// MatchResponse is the style applied to one line
type MatchResponse struct {
	Matched    bool   `json:"matched"`
	Foreground string `json:"foreground"`
	Background string `json:"background"`
	Index      int    `json:"index"`
	CacheHit   bool   `json:"cache_hit"`
}

// MoveRequest is the payload of the move endpoint
type MoveRequest struct {
	To *int `json:"to"`
}

// PathRequest names a filter file
type PathRequest struct {
	Path string `json:"path"`
}

// AdoptRequest is the payload of the adopt endpoint
type AdoptRequest struct {
	Offset *int `json:"offset"`
}

// ExportRequest selects working rules to write to a filter file
type ExportRequest struct {
	Indices []int  `json:"indices"`
	Path    string `json:"path"`
}

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents the standard success response format
type SuccessResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals(domain.RequestIDKey).(string); ok {
		return rid
	}
	return ""
}

func toMatchResponse(result *domain.MatchResult) MatchResponse {
	if result == nil || !result.Matched {
		resp := MatchResponse{Index: -1}
		if result != nil {
			resp.CacheHit = result.CacheHit
		}
		return resp
	}
	return MatchResponse{
		Matched:    true,
		Foreground: result.Foreground,
		Background: result.Background,
		Index:      result.Index,
		CacheHit:   result.CacheHit,
	}
}

// MatchHandler handles POST /v1/match requests
func (h *Handlers) MatchHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var req MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "match_request_parsing"))
	}

	if err := h.validator.ValidateLine(req.Line); err != nil {
		return h.fail(c, err, "match_request_validation")
	}

	result, err := h.matcher.Resolve(ctx, req.Line)
	if err != nil {
		log.Error().
			Err(err).
			Int("line_length", len(req.Line)).
			Str("request_id", requestID(c)).
			Msg("Failed to match line")
		return h.fail(c, err, "line_matching")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   toMatchResponse(result),
	})
}

// MatchBatchHandler handles POST /v1/match/batch requests
func (h *Handlers) MatchBatchHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var req BatchMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "match_batch_parsing"))
	}

	if len(req.Lines) > maxBatchLines {
		return h.sendError(c, domain.NewAppError(
			domain.ErrValidationFailed,
			"Too many lines in batch",
			422,
			map[string]any{"lines": len(req.Lines), "max_lines": maxBatchLines},
		).WithContext(ctx, "match_batch_validation"))
	}

	results := make([]MatchResponse, 0, len(req.Lines))
	matched := 0
	for i, line := range req.Lines {
		if err := h.validator.ValidateLine(line); err != nil {
			var appErr *domain.AppError
			if errors.As(err, &appErr) {
				appErr.Details = map[string]any{"line": i, "reason": appErr.Message}
			}
			return h.fail(c, err, "match_batch_validation")
		}

		result, err := h.matcher.Resolve(ctx, line)
		if err != nil {
			log.Error().Err(err).Int("line", i).Str("request_id", requestID(c)).Msg("Failed to match batch line")
			return h.fail(c, err, "line_matching")
		}
		resp := toMatchResponse(result)
		if resp.Matched {
			matched++
		}
		results = append(results, resp)
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"results": results,
			"count":   len(results),
			"matched": matched,
		},
	})
}

// ListRulesHandler handles GET /v1/rules requests
func (h *Handlers) ListRulesHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	rules, err := h.provider.CommittedRules(ctx)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", requestID(c)).
			Msg("Failed to retrieve rules")
		return h.fail(c, err, "list_rules_retrieval")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"rules": rules,
			"count": len(rules),
		},
	})
}

// PaletteHandler handles GET /v1/palette requests
func (h *Handlers) PaletteHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"colors":             domain.Palette,
			"default_foreground": domain.DefaultForeground,
			"default_background": domain.DefaultBackground,
		},
	})
}

// HealthHandler handles GET /health requests
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	health := h.healthChecker.CheckHealth(ctx)

	// Determine HTTP status based on health status
	status := 200
	if health.Status == domain.HealthStatusUnhealthy {
		status = 503 // Service Unavailable
	}

	return c.Status(status).JSON(map[string]any{
		"status":     health.Status,
		"timestamp":  health.Timestamp.Format(time.RFC3339),
		"components": health.Components,
		"uptime":     health.Uptime,
	})
}

// MetricsHandler handles GET /metrics requests
func (h *Handlers) MetricsHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	cacheStats := h.cache.Stats()

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"cache": map[string]any{
				"hits":      cacheStats.Hits,
				"misses":    cacheStats.Misses,
				"evictions": cacheStats.Evictions,
				"size":      cacheStats.Size,
				"max_size":  cacheStats.MaxSize,
				"bytes":     cacheStats.Bytes,
				"hit_ratio": cacheStats.HitRatio,
			},
			"matcher": h.matcher.GetStats(ctx),
			"storage": h.provider.GetStats(ctx),
			"uptime": map[string]any{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

// fail sends err, keeping its code when it is an AppError
func (h *Handlers) fail(c *fiber.Ctx, err error, operation string) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return h.sendError(c, appErr.WithContext(c.Context(), operation))
	}
	return h.sendError(c, domain.NewAppErrorWithCause(
		domain.ErrInternal,
		"Internal server error",
		500,
		err,
		nil,
	).WithContext(c.Context(), operation))
}

// sendError sends a standardized error response
func (h *Handlers) sendError(c *fiber.Ctx, appErr *domain.AppError) error {
	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// inSession runs fn on the working set of the open session
func (h *Handlers) inSession(fn func(set *workingset.WorkingSet) error) error {
	session, err := h.sessions.Active()
	if err != nil {
		return err
	}
	return session.Do(fn)
}

func paramIndex(c *fiber.Ctx, name string) (int, *domain.AppError) {
	v, err := c.ParamsInt(name)
	if err != nil {
		return 0, domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid "+name,
			400,
			map[string]string{name: c.Params(name)},
		)
	}
	return v, nil
}
