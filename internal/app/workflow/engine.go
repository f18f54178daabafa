package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/keylock"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/app/system/stages"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// TransitionResult reports a stage change. PreviousStage is empty when the
// document had no open occupancy. Escalation is set when leaving the
// previous stage overran its budget.
type TransitionResult struct {
	DocumentID    primitive.ObjectID `json:"document_id"`
	PreviousStage models.Stage       `json:"previous_stage,omitempty"`
	NewStage      models.Stage       `json:"new_stage"`
	Escalation    *Outcome           `json:"escalation,omitempty"`
}

// Engine moves documents between stages and keeps their occupancy history.
//
// NOTE:
//   - This is the only writer of Document.Stage.
//   - Same-document transitions are serialized by a per-document lock in
//     process and by the stage_version check across processes.
type Engine struct {
	docs    DocumentRepo
	history HistoryRepo
	ledger  *Ledger
	stages  *stages.Registry
	tx      TxRunner
	effects EffectFlusher
	locks   *keylock.Locker
	log     *zap.Logger
	now     func() time.Time
}

// Stages returns the registry the engine enforces.
func (e *Engine) Stages() *stages.Registry { return e.stages }

// Transition moves a document to newStage on behalf of actor.
func (e *Engine) Transition(ctx context.Context, documentID primitive.ObjectID, newStage models.Stage, actor primitive.ObjectID, notes string) (TransitionResult, error) {
	const op = "engine.Transition"
	if err := e.validateTarget(op, newStage, actor); err != nil {
		return TransitionResult{}, err
	}

	held := e.lockDocument(documentID)
	defer held.Release()
	out := sideeffects.NewOutbox()
	var res TransitionResult
	err := e.tx.Run(ctx, func(ctx context.Context) error {
		out.Reset()
		doc, err := e.docs.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		res, err = e.transition(ctx, out, held, doc, newStage, actor, notes)
		return err
	})
	held.Release()
	if err != nil {
		return TransitionResult{}, err
	}
	e.effects.Flush(ctx, out)
	return res, nil
}

// Document returns the stored document.
func (e *Engine) Document(ctx context.Context, documentID primitive.ObjectID) (models.Document, error) {
	return e.docs.GetByID(ctx, documentID)
}

// History returns the document's occupancy rows oldest first.
func (e *Engine) History(ctx context.Context, documentID primitive.ObjectID) ([]models.StageOccupancy, error) {
	if _, err := e.docs.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return e.history.ListForDocument(ctx, documentID)
}

// lockDocument returns a held set containing the document's lock. Locks
// taken during the transition join the set; release it after commit.
func (e *Engine) lockDocument(id primitive.ObjectID) *keylock.Held {
	held := e.locks.Hold()
	held.Lock("doc:" + id.Hex())
	return held
}

func (e *Engine) validateTarget(op string, stage models.Stage, actor primitive.ObjectID) error {
	fields := map[string]string{}
	if !e.stages.Known(stage) {
		fields["stage"] = fmt.Sprintf("unknown stage %q", stage)
	}
	if actor.IsZero() {
		fields["actor_id"] = "required"
	}
	if len(fields) > 0 {
		return apperr.Validation(op, "invalid transition", fields)
	}
	return nil
}

// transition performs the close, escalate, open and stage write steps inside
// the caller's transaction. held already contains the document lock.
func (e *Engine) transition(ctx context.Context, out *sideeffects.Outbox, held *keylock.Held, doc models.Document, newStage models.Stage, actor primitive.ObjectID, notes string) (TransitionResult, error) {
	const op = "engine.transition"
	if err := e.validateTarget(op, newStage, actor); err != nil {
		return TransitionResult{}, err
	}
	if e.stages.RequiresReviewers(newStage) && len(doc.Reviewers) == 0 {
		return TransitionResult{}, apperr.Configuration(op, "stage %s requires reviewers but document %s has none", newStage, doc.Label())
	}

	now := e.now().UTC()
	res := TransitionResult{DocumentID: doc.ID, NewStage: newStage}

	open, err := e.history.OpenFor(ctx, doc.ID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("load open occupancy: %w", err)
	}
	if open != nil {
		if open.Stage != doc.Stage {
			return TransitionResult{}, apperr.Invariant(op, "document %s is in stage %s but its open occupancy is %s", doc.ID.Hex(), doc.Stage, open.Stage)
		}
		res.PreviousStage = open.Stage

		duration := wholeMinutes(now.Sub(open.EnteredAt))
		if err := e.history.Close(ctx, open.ID, now, duration); err != nil {
			return TransitionResult{}, err
		}

		budget := int64(e.stages.BudgetMinutes(open.Stage))
		if budget > 0 && duration > budget {
			target := actor
			if open.PerformedBy != nil && !open.PerformedBy.IsZero() {
				target = *open.PerformedBy
			}
			docID := doc.ID
			outcome, err := e.ledger.record(ctx, out, held, Action{
				UserID:     target,
				Kind:       models.ViolationStageOverrun,
				Reason:     overrunReason(doc, open.Stage, budget, duration),
				DocumentID: &docID,
				ActorID:    &actor,
				Policy:     AllTime,
			})
			if err != nil {
				return TransitionResult{}, err
			}
			res.Escalation = &outcome
		}
	}

	if _, err := e.history.Open(ctx, models.StageOccupancy{
		DocumentID:  doc.ID,
		Stage:       newStage,
		EnteredAt:   now,
		PerformedBy: &actor,
		Notes:       notes,
		Open:        true,
	}); err != nil {
		return TransitionResult{}, err
	}

	if err := e.docs.SetStage(ctx, doc.ID, newStage, doc.StageVersion, now); err != nil {
		return TransitionResult{}, err
	}

	docID := doc.ID
	out.Add(sideeffects.Audit(models.AuditRecord{
		DocumentID: &docID,
		Action:     audit.EventStageTransition,
		ActorID:    &actor,
		Detail:     map[string]string{"from": string(res.PreviousStage), "to": string(newStage)},
	}))

	e.log.Info("document transitioned",
		zap.String("document_id", doc.ID.Hex()),
		zap.String("from", string(res.PreviousStage)),
		zap.String("to", string(newStage)),
		zap.Bool("escalated", res.Escalation != nil))
	return res, nil
}

func overrunReason(doc models.Document, stage models.Stage, budget, actual int64) string {
	return fmt.Sprintf("document %s stayed in stage %s longer than allowed: expected %d min, actual %d min, overage %d min",
		doc.Label(), stage, budget, actual, actual-budget)
}
