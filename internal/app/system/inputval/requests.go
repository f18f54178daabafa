package inputval

import "time"

// Request bodies accepted by the JSON API.

// TransitionRequest moves a document to a new stage.
type TransitionRequest struct {
	Stage string `json:"stage" validate:"required,stage"`
	Notes string `json:"notes" validate:"max=2000"`
}

// ResolutionRequest writes a resolution onto a document.
type ResolutionRequest struct {
	Text              string     `json:"text" validate:"required,max=4000"`
	Deadline          *time.Time `json:"deadline"`
	PrimaryExecutorID string     `json:"primary_executor_id" validate:"omitempty,objectid"`
	EqualExecutorIDs  []string   `json:"equal_executor_ids" validate:"omitempty,dive,objectid"`
	CoExecutorIDs     []string   `json:"co_executor_ids" validate:"omitempty,dive,objectid"`
	AssistantID       string     `json:"assistant_id" validate:"omitempty,objectid"`
	Priority          string     `json:"priority" validate:"priority"`
	Notes             string     `json:"notes" validate:"max=2000"`
}

// ReassignRequest replaces the primary executor.
type ReassignRequest struct {
	ExecutorID string `json:"executor_id" validate:"required,objectid"`
	Reason     string `json:"reason" validate:"max=2000"`
}

// CommentRequest adds a comment to a resolution.
type CommentRequest struct {
	Comment string `json:"comment" validate:"required,max=4000"`
}

// CompleteRequest closes a resolution.
type CompleteRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// DisciplinaryActionRequest sanctions a user by hand. Kind defaults to
// manual.
type DisciplinaryActionRequest struct {
	UserID     string `json:"user_id" validate:"required,objectid"`
	Kind       string `json:"kind" validate:"omitempty,violation_kind"`
	Reason     string `json:"reason" validate:"required,max=2000"`
	DocumentID string `json:"document_id" validate:"omitempty,objectid"`
}
