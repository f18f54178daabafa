// Package workflow holds the document handling core: the stage transition
// engine, the escalation ledger, the deadline monitor and the resolution
// assigner. Storage and delivery are reached through the interfaces below;
// the Mongo implementations live under internal/app/store.
package workflow

import (
	"context"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TxRunner runs fn atomically. Calls made with the context passed to fn
// join the same transaction, and nested Run calls join the outer one.
type TxRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// ResolutionUpdate is the assignment written by CreateResolution. Reviewers
// and Contributors are the complete new lists.
type ResolutionUpdate struct {
	Text              string
	Notes             string
	Priority          string
	Deadline          *time.Time
	PrimaryExecutorID *primitive.ObjectID
	CoExecutorIDs     []primitive.ObjectID
	Reviewers         []models.Reviewer
	Contributors      []models.Contributor
	ResolvedByID      primitive.ObjectID
	ResolvedAt        time.Time
	Status            string
}

// DocumentRepo reads and writes documents.
//
// GetByID returns an apperr NotFound error for a missing document. SetStage
// returns an apperr Conflict error when the stored stage_version differs from
// expectedVersion, and increments the version on success.
type DocumentRepo interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Document, error)
	SetStage(ctx context.Context, id primitive.ObjectID, stage models.Stage, expectedVersion int64, now time.Time) error
	ApplyResolution(ctx context.Context, id primitive.ObjectID, upd ResolutionUpdate) error
	SetPrimaryExecutor(ctx context.Context, id primitive.ObjectID, executor primitive.ObjectID, now time.Time) error
	MarkCompleted(ctx context.Context, id primitive.ObjectID, notes string, now time.Time) error
	SetEscalationMarker(ctx context.Context, id primitive.ObjectID, marker models.EscalationMarker) error

	// ListOverdue returns documents with a deadline before now, a stage
	// outside terminal and a primary executor.
	ListOverdue(ctx context.Context, now time.Time, terminal []models.Stage) ([]models.Document, error)
	// ListDueBetween returns documents whose deadline is in [from, to] and
	// whose stage is outside terminal.
	ListDueBetween(ctx context.Context, from, to time.Time, terminal []models.Stage) ([]models.Document, error)
	// ListAssigned returns documents that have a primary executor, narrowed
	// by c. A user criteria matches any of the three executor roles.
	ListAssigned(ctx context.Context, c criteria.Criteria) ([]models.Document, error)
	ListByRole(ctx context.Context, user primitive.ObjectID, role models.ExecutorRole) ([]models.Document, error)
}

// HistoryRepo stores stage occupancy rows.
//
// Close returns an apperr Invariant error when the row is already closed.
// Open returns an apperr Invariant error when the document already has an
// open row.
type HistoryRepo interface {
	OpenFor(ctx context.Context, documentID primitive.ObjectID) (*models.StageOccupancy, error)
	Close(ctx context.Context, id primitive.ObjectID, exitedAt time.Time, durationMinutes int64) error
	Open(ctx context.Context, occ models.StageOccupancy) (models.StageOccupancy, error)
	ListForDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.StageOccupancy, error)
	ListOpenEnteredBefore(ctx context.Context, stage models.Stage, cutoff time.Time) ([]models.StageOccupancy, error)
	// ListEntered returns rows narrowed by c: a date range applies to
	// entered_at, a user to performed_by, a department to the document's
	// department.
	ListEntered(ctx context.Context, c criteria.Criteria) ([]models.StageOccupancy, error)
}

// ViolationRepo stores violations.
type ViolationRepo interface {
	Insert(ctx context.Context, v models.Violation) (models.Violation, error)
	// CountSince counts the user's violations created at or after since;
	// a nil since counts all of them.
	CountSince(ctx context.Context, user primitive.ObjectID, since *time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, user primitive.ObjectID, cutoff time.Time) (int64, error)
	// ListForUser returns the user's violations oldest first.
	ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Violation, error)
	// List returns violations narrowed by c: a date range applies to
	// created_at, a department to the sanctioned user's department.
	List(ctx context.Context, c criteria.Criteria) ([]models.Violation, error)
}

// KPIStore is the penalty sink.
type KPIStore interface {
	// CurrentPeriod returns the user's record for the month containing now,
	// or nil when there is none.
	CurrentPeriod(ctx context.Context, user primitive.ObjectID, now time.Time) (*models.KPIRecord, error)
	// ApplyPenalty subtracts amount from the score (floored at 0) and adds
	// it to the cumulative penalty in one atomic update.
	ApplyPenalty(ctx context.Context, recordID primitive.ObjectID, amount float64, now time.Time) error
}

// UserDirectory looks up users. GetByID returns an apperr NotFound error for
// an unknown user.
type UserDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// EffectFlusher delivers side effects collected during a mutation.
// *sideeffects.Dispatcher implements it.
type EffectFlusher interface {
	Flush(ctx context.Context, out *sideeffects.Outbox) sideeffects.Report
}
