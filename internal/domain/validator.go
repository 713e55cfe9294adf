package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// InputValidator validates rules, lines and file paths received from callers
type InputValidator struct {
	maxLineSize int
	maxPathSize int
	structs     *validator.Validate
}

// NewInputValidator creates a new input validator with default settings
func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxLineSize: 65536, // 64KB
		maxPathSize: 4096,
		structs:     validator.New(),
	}
}

// NewValidator creates a new input validator instance
func NewValidator() Validator {
	return NewInputValidator()
}

// ValidateRule validates a complete rule structure
func (v *InputValidator) ValidateRule(rule *Rule) error {
	if rule == nil {
		return NewAppError(ErrValidationFailed, "Rule cannot be nil", 422, nil)
	}

	if err := v.structs.Struct(rule); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return NewAppErrorWithCause(ErrValidationFailed, fmt.Sprintf("Invalid %s", strings.ToLower(fe.Field())), 422, err, map[string]any{
				"field": strings.ToLower(fe.Field()),
				"tag":   fe.Tag(),
			})
		}
		return NewAppErrorWithCause(ErrValidationFailed, "Invalid rule", 422, err, nil)
	}

	if !utf8.ValidString(rule.Pattern) {
		return NewAppError(ErrValidationFailed, "Pattern must be valid UTF-8", 422, map[string]any{"field": "pattern"})
	}

	if err := rule.Compile(); err != nil {
		return NewAppErrorWithCause(ErrValidationFailed, "Invalid regex pattern", 422, err, map[string]any{
			"field":   "pattern",
			"pattern": rule.Pattern,
		})
	}

	return nil
}

// ValidateLine validates a line submitted for matching
func (v *InputValidator) ValidateLine(line string) error {
	if len(line) > v.maxLineSize {
		return NewAppError(ErrValidationFailed, fmt.Sprintf("Line too long (max %d bytes)", v.maxLineSize), 422, map[string]any{
			"field":    "line",
			"size":     len(line),
			"max_size": v.maxLineSize,
		})
	}
	if !utf8.ValidString(line) {
		return NewAppError(ErrValidationFailed, "Line must be valid UTF-8", 422, map[string]any{"field": "line"})
	}
	return nil
}

// ValidatePath validates a filter file path
func (v *InputValidator) ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return NewAppError(ErrValidationFailed, "Path is required", 422, map[string]any{"field": "path"})
	}
	if len(path) > v.maxPathSize {
		return NewAppError(ErrValidationFailed, "Path too long", 422, map[string]any{
			"field":      "path",
			"length":     len(path),
			"max_length": v.maxPathSize,
		})
	}
	if strings.ContainsRune(path, 0) {
		return NewAppError(ErrValidationFailed, "Path contains a NUL byte", 422, map[string]any{"field": "path"})
	}
	if filepath.Base(path) == "." || strings.HasSuffix(path, string(filepath.Separator)) {
		return NewAppError(ErrValidationFailed, "Path must name a file", 422, map[string]any{"field": "path", "value": path})
	}
	return nil
}
