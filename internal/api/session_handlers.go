package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

// BeginSessionHandler handles POST /v1/session requests
func (h *Handlers) BeginSessionHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	session, err := h.sessions.Begin(ctx)
	if err != nil {
		return h.fail(c, err, "begin_session")
	}

	var rules, sources int
	_ = session.Do(func(set *workingset.WorkingSet) error {
		rules = set.Len()
		sources = set.Registry().Len()
		return nil
	})

	return c.Status(201).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"session_id": session.ID,
			"started":    session.Started,
			"rules":      rules,
			"sources":    sources,
		},
	})
}

// CommitSessionHandler handles POST /v1/session/commit requests
func (h *Handlers) CommitSessionHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	session, err := h.sessions.Active()
	if err != nil {
		return h.fail(c, err, "commit_session")
	}

	if err := session.Commit(ctx); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Str("request_id", requestID(c)).Msg("Failed to commit session")
		return h.fail(c, err, "commit_session")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"session_id": session.ID,
			"committed":  true,
		},
	})
}

// CancelSessionHandler handles DELETE /v1/session requests
func (h *Handlers) CancelSessionHandler(c *fiber.Ctx) error {
	session, err := h.sessions.Active()
	if err != nil {
		return h.fail(c, err, "cancel_session")
	}
	session.Cancel()
	return c.SendStatus(204)
}

// ListSessionRulesHandler handles GET /v1/session/rules requests
func (h *Handlers) ListSessionRulesHandler(c *fiber.Ctx) error {
	var entries []workingset.Entry
	err := h.inSession(func(set *workingset.WorkingSet) error {
		entries = set.Entries()
		return nil
	})
	if err != nil {
		return h.fail(c, err, "list_session_rules")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"rules": entries,
			"count": len(entries),
		},
	})
}

// AddSessionRuleHandler handles POST /v1/session/rules requests. Fields left
// out of the body take the defaults of a new rule.
func (h *Handlers) AddSessionRuleHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var edit domain.RuleEdit
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&edit); err != nil {
			return h.sendError(c, domain.NewAppError(
				domain.ErrInvalidInput,
				"Invalid JSON payload",
				400,
				map[string]string{"error": err.Error()},
			).WithContext(ctx, "add_rule_parsing"))
		}
	}

	trimStyle(&edit)
	rule := domain.NewRule()
	edit.Apply(&rule)
	if err := h.validator.ValidateRule(&rule); err != nil {
		return h.fail(c, err, "add_rule_validation")
	}

	var index int
	err := h.inSession(func(set *workingset.WorkingSet) error {
		index = set.Add(rule)
		return nil
	})
	if err != nil {
		return h.fail(c, err, "add_rule")
	}

	return c.Status(201).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"index": index,
			"rule":  rule,
		},
	})
}

// UpdateSessionRuleHandler handles PUT /v1/session/rules/:index requests
func (h *Handlers) UpdateSessionRuleHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	index, appErr := paramIndex(c, "index")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "update_rule_parsing"))
	}

	var edit domain.RuleEdit
	if err := c.BodyParser(&edit); err != nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "update_rule_parsing"))
	}

	trimStyle(&edit)

	var updated domain.Rule
	var modified bool
	err := h.inSession(func(set *workingset.WorkingSet) error {
		current, err := set.Rule(index)
		if err != nil {
			return err
		}
		edit.Apply(&current)
		if err := h.validator.ValidateRule(&current); err != nil {
			return err
		}
		if updated, err = set.Update(index, edit); err != nil {
			return err
		}
		modified = set.Modified(index)
		return nil
	})
	if err != nil {
		return h.fail(c, err, "update_rule")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"index":    index,
			"rule":     updated,
			"modified": modified,
		},
	})
}

// DeleteSessionRuleHandler handles DELETE /v1/session/rules/:index requests
func (h *Handlers) DeleteSessionRuleHandler(c *fiber.Ctx) error {
	index, appErr := paramIndex(c, "index")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(c.Context(), "delete_rule_parsing"))
	}

	err := h.inSession(func(set *workingset.WorkingSet) error {
		_, err := set.Remove(index)
		return err
	})
	if err != nil {
		return h.fail(c, err, "delete_rule")
	}
	return c.SendStatus(204)
}

// MoveSessionRuleHandler handles POST /v1/session/rules/:index/move requests
func (h *Handlers) MoveSessionRuleHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	index, appErr := paramIndex(c, "index")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "move_rule_parsing"))
	}

	var req MoveRequest
	if err := c.BodyParser(&req); err != nil || req.To == nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Move target is required",
			400,
			map[string]string{"field": "to"},
		).WithContext(ctx, "move_rule_parsing"))
	}

	err := h.inSession(func(set *workingset.WorkingSet) error {
		return set.Move(index, *req.To)
	})
	if err != nil {
		return h.fail(c, err, "move_rule")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"from": index, "to": *req.To},
	})
}

// SaveChangeHandler handles POST /v1/session/rules/:index/save-change requests
func (h *Handlers) SaveChangeHandler(c *fiber.Ctx) error {
	return h.changeHandler(c, "save_change", (*workingset.WorkingSet).SaveChange)
}

// UndoChangeHandler handles POST /v1/session/rules/:index/undo-change requests
func (h *Handlers) UndoChangeHandler(c *fiber.Ctx) error {
	return h.changeHandler(c, "undo_change", (*workingset.WorkingSet).UndoChange)
}

func (h *Handlers) changeHandler(c *fiber.Ctx, operation string, apply func(*workingset.WorkingSet, int) error) error {
	index, appErr := paramIndex(c, "index")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(c.Context(), operation))
	}

	var rule domain.Rule
	err := h.inSession(func(set *workingset.WorkingSet) error {
		if err := apply(set, index); err != nil {
			return err
		}
		var err error
		rule, err = set.Rule(index)
		return err
	})
	if err != nil {
		return h.fail(c, err, operation)
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"index": index, "rule": rule, "modified": false},
	})
}

// ListSourcesHandler handles GET /v1/session/sources requests
func (h *Handlers) ListSourcesHandler(c *fiber.Ctx) error {
	var sources []map[string]any
	err := h.inSession(func(set *workingset.WorkingSet) error {
		for _, s := range set.Registry().Summaries() {
			sources = append(sources, map[string]any{
				"id":         s.ID,
				"name":       s.Name,
				"rule_count": s.RuleCount,
				"missing":    s.Missing,
				"auto":       s.Auto,
				"dirty":      s.Dirty,
				"modified":   set.SourceModified(s.ID),
			})
		}
		return nil
	})
	if err != nil {
		return h.fail(c, err, "list_sources")
	}
	if sources == nil {
		sources = []map[string]any{}
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"sources": sources,
			"count":   len(sources),
		},
	})
}

// ImportSourceHandler handles POST /v1/session/sources requests
func (h *Handlers) ImportSourceHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var req PathRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "import_source_parsing"))
	}
	req.Path = strings.TrimSpace(req.Path)
	if err := h.validator.ValidatePath(req.Path); err != nil {
		return h.fail(c, err, "import_source_validation")
	}

	var id, ruleCount int
	err := h.inSession(func(set *workingset.WorkingSet) error {
		var err error
		if id, err = set.ImportSource(req.Path); err != nil {
			return err
		}
		ruleCount = set.Registry().Source(id).Rules.Len()
		return nil
	})
	if err != nil {
		return h.fail(c, err, "import_source")
	}

	return c.Status(201).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"source_id":  id,
			"rule_count": ruleCount,
		},
	})
}

// RemoveSourceHandler handles DELETE /v1/session/sources/:id requests
func (h *Handlers) RemoveSourceHandler(c *fiber.Ctx) error {
	id, appErr := paramIndex(c, "id")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(c.Context(), "remove_source_parsing"))
	}

	err := h.inSession(func(set *workingset.WorkingSet) error {
		return set.RemoveSource(id)
	})
	if err != nil {
		return h.fail(c, err, "remove_source")
	}
	return c.SendStatus(204)
}

// ReferencesHandler handles GET /v1/session/sources/:id/references requests
func (h *Handlers) ReferencesHandler(c *fiber.Ctx) error {
	id, appErr := paramIndex(c, "id")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(c.Context(), "references_parsing"))
	}

	var refs []workingset.Reference
	var modified bool
	err := h.inSession(func(set *workingset.WorkingSet) error {
		var err error
		if refs, err = set.References(id); err != nil {
			return err
		}
		modified = set.SourceModified(id)
		return nil
	})
	if err != nil {
		return h.fail(c, err, "references")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"source_id":  id,
			"references": refs,
			"modified":   modified,
		},
	})
}

// AdoptHandler handles POST /v1/session/sources/:id/adopt requests
func (h *Handlers) AdoptHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	id, appErr := paramIndex(c, "id")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "adopt_parsing"))
	}

	var req AdoptRequest
	if err := c.BodyParser(&req); err != nil || req.Offset == nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Offset is required",
			400,
			map[string]string{"field": "offset"},
		).WithContext(ctx, "adopt_parsing"))
	}

	var index int
	err := h.inSession(func(set *workingset.WorkingSet) error {
		var err error
		index, err = set.Adopt(id, *req.Offset)
		return err
	})
	if err != nil {
		return h.fail(c, err, "adopt")
	}

	return c.Status(201).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"source_id": id,
			"offset":    *req.Offset,
			"index":     index,
		},
	})
}

// ReleaseHandler handles DELETE /v1/session/sources/:id/adopt/:offset requests
func (h *Handlers) ReleaseHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	id, appErr := paramIndex(c, "id")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "release_parsing"))
	}
	offset, appErr := paramIndex(c, "offset")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "release_parsing"))
	}

	err := h.inSession(func(set *workingset.WorkingSet) error {
		return set.Release(id, offset)
	})
	if err != nil {
		return h.fail(c, err, "release")
	}

	return c.JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"source_id": id,
			"offset":    offset,
		},
	})
}

// SaveChangesHandler handles POST /v1/session/sources/:id/save-changes requests
func (h *Handlers) SaveChangesHandler(c *fiber.Ctx) error {
	return h.changesHandler(c, "save_changes", (*workingset.WorkingSet).SaveChanges)
}

// UndoChangesHandler handles POST /v1/session/sources/:id/undo-changes requests
func (h *Handlers) UndoChangesHandler(c *fiber.Ctx) error {
	return h.changesHandler(c, "undo_changes", (*workingset.WorkingSet).UndoChanges)
}

func (h *Handlers) changesHandler(c *fiber.Ctx, operation string, apply func(*workingset.WorkingSet, int) (int, error)) error {
	id, appErr := paramIndex(c, "id")
	if appErr != nil {
		return h.sendError(c, appErr.WithContext(c.Context(), operation))
	}

	var count int
	err := h.inSession(func(set *workingset.WorkingSet) error {
		var err error
		count, err = apply(set, id)
		return err
	})
	if err != nil {
		return h.fail(c, err, operation)
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"source_id": id, "count": count},
	})
}

// ExportHandler handles POST /v1/session/export requests
func (h *Handlers) ExportHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var req ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "export_parsing"))
	}
	req.Path = strings.TrimSpace(req.Path)
	if err := h.validator.ValidatePath(req.Path); err != nil {
		return h.fail(c, err, "export_validation")
	}

	var count int
	err := h.inSession(func(set *workingset.WorkingSet) error {
		count = len(req.Indices)
		if count == 0 {
			count = set.Len()
		}
		return set.Export(req.Indices, req.Path)
	})
	if err != nil {
		log.Error().Err(err).Str("path", req.Path).Str("request_id", requestID(c)).Msg("Failed to export filters")
		return h.fail(c, err, "export")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"path":  req.Path,
			"count": count,
		},
	})
}

// trimStyle normalizes color names entered by hand
func trimStyle(edit *domain.RuleEdit) {
	if edit.Foreground != nil {
		fg := strings.TrimSpace(*edit.Foreground)
		edit.Foreground = &fg
	}
	if edit.Background != nil {
		bg := strings.TrimSpace(*edit.Background)
		edit.Background = &bg
	}
}
