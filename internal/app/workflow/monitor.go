package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/app/system/stages"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// StuckDocument is an open occupancy past its stage budget.
type StuckDocument struct {
	DocumentID   primitive.ObjectID `json:"document_id"`
	EnteredAt    time.Time          `json:"entered_at"`
	MinutesStuck int64              `json:"minutes_stuck"`
}

// NearingDocument is an open occupancy past the threshold share of its
// stage budget. MinutesRemaining goes negative once the budget is spent.
type NearingDocument struct {
	DocumentID       primitive.ObjectID `json:"document_id"`
	EnteredAt        time.Time          `json:"entered_at"`
	MinutesElapsed   int64              `json:"minutes_elapsed"`
	MinutesRemaining int64              `json:"minutes_remaining"`
}

// StageStats summarizes the occupancy rows of one stage.
type StageStats struct {
	Stage             models.Stage `json:"stage"`
	Total             int64        `json:"total"`
	Completed         int64        `json:"completed"`
	InProgress        int64        `json:"in_progress"`
	AverageDuration   float64      `json:"average_duration"`
	OverdueCount      int64        `json:"overdue_count"`
	OverduePercentage int64        `json:"overdue_percentage"`
}

// Monitor runs the deadline scans and stage queries. It keeps no schedule of
// its own; an external scheduler calls the scans.
type Monitor struct {
	docs      DocumentRepo
	history   HistoryRepo
	ledger    *Ledger
	stages    *stages.Registry
	effects   EffectFlusher
	dedupe    bool
	loc       *time.Location
	threshold float64
	log       *zap.Logger
	now       func() time.Time
}

// CheckOverdueDocuments sanctions the primary executor and every co-executor
// of each overdue document, counting prior violations over all time.
//
// Calling it twice on the same overdue set creates duplicate violations
// unless the monitor was built with OverdueDedupe, in which case a document
// is escalated once per stage.
func (m *Monitor) CheckOverdueDocuments(ctx context.Context) ([]models.Violation, error) {
	now := m.now().UTC()
	docs, err := m.docs.ListOverdue(ctx, now, m.stages.Terminal())
	if err != nil {
		return nil, fmt.Errorf("list overdue documents: %w", err)
	}

	var created []models.Violation
	for _, doc := range docs {
		if doc.PrimaryExecutorID == nil {
			continue
		}
		if m.dedupe && doc.OverdueEscalation != nil && doc.OverdueEscalation.Stage == doc.Stage {
			continue
		}

		docID := doc.ID
		targets := []struct {
			user primitive.ObjectID
			role string
		}{{*doc.PrimaryExecutorID, "primary executor"}}
		for _, co := range doc.CoExecutorIDs {
			targets = append(targets, struct {
				user primitive.ObjectID
				role string
			}{co, "co-executor"})
		}

		escalated := false
		for _, t := range targets {
			reason := fmt.Sprintf("document %s is overdue as %s: deadline %s passed",
				doc.Label(), t.role, doc.Deadline.UTC().Format(time.RFC3339))
			outcome, err := m.ledger.ApplyDisciplinaryAction(ctx, Action{
				UserID:     t.user,
				Kind:       models.ViolationDeadline,
				Reason:     reason,
				DocumentID: &docID,
				Policy:     AllTime,
			})
			if err != nil {
				m.log.Error("overdue escalation failed",
					zap.String("document_id", doc.ID.Hex()),
					zap.String("user_id", t.user.Hex()),
					zap.Error(err))
				continue
			}
			escalated = true
			created = append(created, outcome.Violation)
		}

		if m.dedupe && escalated {
			if err := m.docs.SetEscalationMarker(ctx, doc.ID, models.EscalationMarker{Stage: doc.Stage, At: now}); err != nil {
				m.log.Error("failed to mark document escalated", zap.String("document_id", doc.ID.Hex()), zap.Error(err))
			}
		}
	}

	m.log.Info("overdue scan finished", zap.Int("documents", len(docs)), zap.Int("violations", len(created)))
	return created, nil
}

// UpcomingWindow returns the upcoming-deadline window for now: today at
// 00:00 through tomorrow at 23:59:59 in the monitor's time zone.
func (m *Monitor) UpcomingWindow(now time.Time) (from, to time.Time) {
	local := now.In(m.loc)
	from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.loc)
	to = from.AddDate(0, 0, 2).Add(-time.Second)
	return from, to
}

// CheckUpcomingDeadlines notifies the primary executor and co-executors of
// every document due today or tomorrow and returns the notifications that
// were delivered. Failed ones are queued for retry and left out. It creates
// no violations.
func (m *Monitor) CheckUpcomingDeadlines(ctx context.Context) ([]models.Notification, error) {
	now := m.now()
	from, to := m.UpcomingWindow(now)
	docs, err := m.docs.ListDueBetween(ctx, from, to, m.stages.Terminal())
	if err != nil {
		return nil, fmt.Errorf("list upcoming deadlines: %w", err)
	}

	out := sideeffects.NewOutbox()
	for _, doc := range docs {
		recipients := make([]primitive.ObjectID, 0, 1+len(doc.CoExecutorIDs))
		if doc.PrimaryExecutorID != nil {
			recipients = append(recipients, *doc.PrimaryExecutorID)
		}
		recipients = append(recipients, doc.CoExecutorIDs...)

		msg := fmt.Sprintf("Document %s is due %s", doc.Label(), doc.Deadline.In(m.loc).Format("2006-01-02 15:04"))
		for _, user := range recipients {
			out.Add(sideeffects.Notify(user, msg, documentLink(doc.ID)))
		}
	}
	rep := m.effects.Flush(ctx, out)

	sent := []models.Notification{}
	for _, e := range rep.Delivered() {
		if e.Notification != nil {
			sent = append(sent, *e.Notification)
		}
	}
	m.log.Info("upcoming deadline scan finished",
		zap.Int("documents", len(docs)),
		zap.Int("notifications", len(sent)),
		zap.Int("failed", len(rep.Failed())))
	return sent, nil
}

// StuckDocuments lists open occupancies of stage older than its budget.
// Stages without a budget never have stuck documents.
func (m *Monitor) StuckDocuments(ctx context.Context, stage models.Stage) ([]StuckDocument, error) {
	if !m.stages.Known(stage) {
		return nil, apperr.Validation("monitor.StuckDocuments", "unknown stage", map[string]string{"stage": string(stage)})
	}
	budget := m.stages.Budget(stage)
	if budget <= 0 {
		return []StuckDocument{}, nil
	}
	now := m.now().UTC()
	rows, err := m.history.ListOpenEnteredBefore(ctx, stage, now.Add(-budget))
	if err != nil {
		return nil, err
	}
	out := make([]StuckDocument, 0, len(rows))
	for _, r := range rows {
		out = append(out, StuckDocument{
			DocumentID:   r.DocumentID,
			EnteredAt:    r.EnteredAt,
			MinutesStuck: wholeMinutes(now.Sub(r.EnteredAt)),
		})
	}
	return out, nil
}

// DocumentsNearingDeadline lists open occupancies of stage that have used at
// least threshold of the stage budget. A threshold of 0 uses the configured
// default. Rows already past the full budget are included too.
func (m *Monitor) DocumentsNearingDeadline(ctx context.Context, stage models.Stage, threshold float64) ([]NearingDocument, error) {
	const op = "monitor.DocumentsNearingDeadline"
	if !m.stages.Known(stage) {
		return nil, apperr.Validation(op, "unknown stage", map[string]string{"stage": string(stage)})
	}
	if threshold == 0 {
		threshold = m.threshold
	}
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, apperr.Validation(op, "threshold must be between 0 and 1", map[string]string{"threshold": fmt.Sprint(threshold)})
	}
	budget := int64(m.stages.BudgetMinutes(stage))
	if budget <= 0 {
		return []NearingDocument{}, nil
	}
	now := m.now().UTC()
	cutoff := now.Add(-time.Duration(float64(budget) * threshold * float64(time.Minute)))
	rows, err := m.history.ListOpenEnteredBefore(ctx, stage, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]NearingDocument, 0, len(rows))
	for _, r := range rows {
		elapsed := wholeMinutes(now.Sub(r.EnteredAt))
		out = append(out, NearingDocument{
			DocumentID:       r.DocumentID,
			EnteredAt:        r.EnteredAt,
			MinutesElapsed:   elapsed,
			MinutesRemaining: budget - elapsed,
		})
	}
	return out, nil
}

// StageStatistics summarizes occupancy rows matching c for every stage, in
// registry order. Overdue counts completed rows whose duration exceeded a
// positive budget.
func (m *Monitor) StageStatistics(ctx context.Context, c criteria.Criteria) ([]StageStats, error) {
	rows, err := m.history.ListEntered(ctx, c)
	if err != nil {
		return nil, err
	}

	type acc struct {
		StageStats
		durationSum int64
	}
	byStage := make(map[models.Stage]*acc)
	order := m.stages.Stages()
	for _, s := range order {
		byStage[s] = &acc{StageStats: StageStats{Stage: s}}
	}

	for _, r := range rows {
		a, ok := byStage[r.Stage]
		if !ok {
			continue
		}
		a.Total++
		if r.ExitedAt == nil {
			a.InProgress++
			continue
		}
		a.Completed++
		var d int64
		if r.DurationMinutes != nil {
			d = *r.DurationMinutes
		}
		a.durationSum += d
		if budget := int64(m.stages.BudgetMinutes(r.Stage)); budget > 0 && d > budget {
			a.OverdueCount++
		}
	}

	out := make([]StageStats, 0, len(order))
	for _, s := range order {
		a := byStage[s]
		if a.Completed > 0 {
			a.AverageDuration = math.Round(float64(a.durationSum)/float64(a.Completed)*10) / 10
		}
		a.OverduePercentage = percent(a.OverdueCount, a.Completed)
		out = append(out, a.StageStats)
	}
	return out, nil
}
