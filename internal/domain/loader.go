package domain

// ChangeType represents the type of file system change
type ChangeType string

const (
	// ChangeCreated indicates a new file was created
	ChangeCreated ChangeType = "created"
	// ChangeModified indicates an existing file was modified
	ChangeModified ChangeType = "modified"
	// ChangeDeleted indicates a file was deleted
	ChangeDeleted ChangeType = "deleted"
)

// LoadError represents an error loading a specific filter file
type LoadError struct {
	FilePath string `json:"file_path"` // Path to the file that failed to load
	Error    string `json:"error"`     // Error message describing the failure
}

// FileChangeEvent represents a file system change affecting persisted rules
type FileChangeEvent struct {
	Type     ChangeType `json:"type"`      // Type of change: created, modified, deleted
	FilePath string     `json:"file_path"` // Path to the changed file
}

// RuleEdit is a partial update of a rule; nil fields are left unchanged
type RuleEdit struct {
	Pattern    *string `json:"pattern,omitempty"`
	IgnoreCase *bool   `json:"ignore_case,omitempty"`
	Foreground *string `json:"foreground,omitempty"`
	Background *string `json:"background,omitempty"`
}

// Apply applies the edit to rule
func (e RuleEdit) Apply(rule *Rule) {
	if e.Pattern != nil {
		rule.Pattern = *e.Pattern
	}
	if e.IgnoreCase != nil {
		rule.IgnoreCase = *e.IgnoreCase
	}
	if e.Foreground != nil {
		rule.Foreground = *e.Foreground
	}
	if e.Background != nil {
		rule.Background = *e.Background
	}
}
