// internal/domain/models/document.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document statuses.
const (
	DocumentStatusNew        = "new"
	DocumentStatusInProgress = "in_progress"
	DocumentStatusDone       = "done"
)

// Reviewer statuses.
const (
	ReviewerPending  = "pending"
	ReviewerApproved = "approved"
	ReviewerRejected = "rejected"
)

// Role tags carried on reviewer and contributor entries.
const (
	RoleEqualExecutor = "equal_executor"
	RoleAssistant     = "assistant"
)

// ExecutorRole names one of the ways a user takes part in executing a
// document.
type ExecutorRole string

// Executor roles.
const (
	ExecutorPrimary   ExecutorRole = "primary"
	ExecutorEqual     ExecutorRole = "equal"
	ExecutorCo        ExecutorRole = "co"
	ExecutorAssistant ExecutorRole = "assistant"
)

// Valid reports whether r is one of the known executor roles.
func (r ExecutorRole) Valid() bool {
	switch r {
	case ExecutorPrimary, ExecutorEqual, ExecutorCo, ExecutorAssistant:
		return true
	}
	return false
}

// Document priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Reviewer is a person asked to review or act on a document.
// Reviewers tagged RoleEqualExecutor share execution with the primary executor.
type Reviewer struct {
	UserID  primitive.ObjectID `bson:"user_id" json:"user_id"`
	Status  string             `bson:"status" json:"status"` // pending | approved | rejected
	Role    string             `bson:"role,omitempty" json:"role,omitempty"`
	AddedAt time.Time          `bson:"added_at" json:"added_at"`
}

// Contributor is a person helping on a document. At most one contributor per
// document carries RoleAssistant.
type Contributor struct {
	UserID  primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role    string             `bson:"role,omitempty" json:"role,omitempty"`
	AddedAt time.Time          `bson:"added_at" json:"added_at"`
}

// EscalationMarker remembers the last time an overdue scan escalated a
// document, and in which stage.
type EscalationMarker struct {
	Stage Stage     `bson:"stage" json:"stage"`
	At    time.Time `bson:"at" json:"at"`
}

// Document is a tracked document moving through the handling stages.
//
// NOTE:
//   - Stage is only ever written by the transition engine, together with the
//     stage_history rows, and always guarded by StageVersion.
type Document struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RegNumber    string              `bson:"reg_number" json:"reg_number"`
	Title        string              `bson:"title" json:"title"`
	Kartoteka    string              `bson:"kartoteka,omitempty" json:"kartoteka,omitempty"` // filing category code
	DepartmentID *primitive.ObjectID `bson:"department_id,omitempty" json:"department_id,omitempty"`
	AuthorID     *primitive.ObjectID `bson:"author_id,omitempty" json:"author_id,omitempty"`

	Stage        Stage      `bson:"stage" json:"stage"`
	StageVersion int64      `bson:"stage_version" json:"stage_version"`
	Status       string     `bson:"status" json:"status"`
	Priority     string     `bson:"priority,omitempty" json:"priority,omitempty"`
	Deadline     *time.Time `bson:"deadline,omitempty" json:"deadline,omitempty"`

	PrimaryExecutorID *primitive.ObjectID  `bson:"primary_executor_id,omitempty" json:"primary_executor_id,omitempty"`
	CoExecutorIDs     []primitive.ObjectID `bson:"co_executor_ids,omitempty" json:"co_executor_ids,omitempty"`
	Contributors      []Contributor        `bson:"contributors,omitempty" json:"contributors,omitempty"`
	Reviewers         []Reviewer           `bson:"reviewers,omitempty" json:"reviewers,omitempty"`

	ResolutionText  string              `bson:"resolution_text,omitempty" json:"resolution_text,omitempty"`
	ResolutionNotes string              `bson:"resolution_notes,omitempty" json:"resolution_notes,omitempty"`
	ResolvedByID    *primitive.ObjectID `bson:"resolved_by_id,omitempty" json:"resolved_by_id,omitempty"`
	ResolvedAt      *time.Time          `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	CompletionNotes string              `bson:"completion_notes,omitempty" json:"completion_notes,omitempty"`
	CompletedAt     *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	OverdueEscalation *EscalationMarker `bson:"overdue_escalation,omitempty" json:"overdue_escalation,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// EqualExecutorIDs returns reviewers tagged as equal executors.
func (d Document) EqualExecutorIDs() []primitive.ObjectID {
	var out []primitive.ObjectID
	for _, r := range d.Reviewers {
		if r.Role == RoleEqualExecutor {
			out = append(out, r.UserID)
		}
	}
	return out
}

// AssistantID returns the assistant contributor, if any.
func (d Document) AssistantID() *primitive.ObjectID {
	for _, c := range d.Contributors {
		if c.Role == RoleAssistant {
			id := c.UserID
			return &id
		}
	}
	return nil
}

// IsOverdue reports whether the deadline has passed at now.
func (d Document) IsOverdue(now time.Time) bool {
	return d.Deadline != nil && d.Deadline.Before(now)
}

// HasExecutor reports whether user takes part in the document in any of the
// three executor roles (primary, equal or co-executor).
func (d Document) HasExecutor(user primitive.ObjectID) bool {
	if d.PrimaryExecutorID != nil && *d.PrimaryExecutorID == user {
		return true
	}
	for _, id := range d.CoExecutorIDs {
		if id == user {
			return true
		}
	}
	for _, id := range d.EqualExecutorIDs() {
		if id == user {
			return true
		}
	}
	return false
}

// Label is how the document is named in messages: its registration number
// when it has one, otherwise its id.
func (d Document) Label() string {
	if d.RegNumber != "" {
		return d.RegNumber
	}
	return d.ID.Hex()
}
