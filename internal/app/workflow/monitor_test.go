package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedOverdue(f *fixture) (doc models.Document, primary, co1, co2 models.User) {
	primary = f.user("Primary")
	co1 = f.user("Co One")
	co2 = f.user("Co Two")
	doc = f.store.AddDocument(models.Document{
		RegNumber:         "OUT-77",
		Stage:             models.StageExecution,
		Deadline:          ptr(t0.Add(-2 * time.Hour)),
		PrimaryExecutorID: &primary.ID,
		CoExecutorIDs:     []primitive.ObjectID{co1.ID, co2.ID},
	})
	return doc, primary, co1, co2
}

func TestCheckOverdueDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, primary, co1, co2 := seedOverdue(f)

	// Not selected: terminal, no primary executor, deadline in the future.
	done := f.user("Done")
	f.store.AddDocument(models.Document{RegNumber: "X-1", Stage: models.StageCompleted, Deadline: ptr(t0.Add(-day)), PrimaryExecutorID: &done.ID})
	f.store.AddDocument(models.Document{RegNumber: "X-2", Stage: models.StageExecution, Deadline: ptr(t0.Add(-day))})
	f.store.AddDocument(models.Document{RegNumber: "X-3", Stage: models.StageExecution, Deadline: ptr(t0.Add(day)), PrimaryExecutorID: &done.ID})

	vs, err := f.svc.Monitor.CheckOverdueDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 3)

	users := map[primitive.ObjectID]bool{}
	reasons := map[string]bool{}
	for _, v := range vs {
		users[v.UserID] = true
		reasons[v.Reason] = true
		assert.Equal(t, models.ViolationDeadline, v.Kind)
		require.NotNil(t, v.DocumentID)
		assert.Equal(t, doc.ID, *v.DocumentID)
		assert.True(t, strings.Contains(v.Reason, "OUT-77"), v.Reason)
	}
	assert.True(t, users[primary.ID] && users[co1.ID] && users[co2.ID])
	assert.Len(t, reasons, 2, "primary and co-executor reasons differ")
}

func TestCheckOverdueDocuments_DuplicatesOnRepeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, primary, _, _ := seedOverdue(f)

	first, err := f.svc.Monitor.CheckOverdueDocuments(ctx)
	require.NoError(t, err)
	second, err := f.svc.Monitor.CheckOverdueDocuments(ctx)
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Len(t, second, 3)

	var forPrimary []models.Violation
	for _, v := range f.store.AllViolations() {
		if v.UserID == primary.ID {
			forPrimary = append(forPrimary, v)
		}
	}
	require.Len(t, forPrimary, 2)
	assert.NotEqual(t, forPrimary[0].ID, forPrimary[1].ID)
	assert.Equal(t, forPrimary[0].Reason, forPrimary[1].Reason)
	assert.Equal(t, models.LevelReprimand, forPrimary[1].Level, "all-time count escalates the repeat")
}

func TestCheckOverdueDocuments_Dedupe(t *testing.T) {
	f := newFixture(t, withConfig(func(c *workflow.Config) { c.OverdueDedupe = true }))
	ctx := context.Background()
	doc, _, _, _ := seedOverdue(f)

	first, err := f.svc.Monitor.CheckOverdueDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := f.svc.Monitor.CheckOverdueDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)

	stored, _ := f.store.Document(doc.ID)
	require.NotNil(t, stored.OverdueEscalation)
	assert.Equal(t, models.StageExecution, stored.OverdueEscalation.Stage)
}

func TestCheckOverdueDocuments_SkipsUnknownUsers(t *testing.T) {
	f := newFixture(t)
	primary := f.user("Primary")
	ghost := primitive.NewObjectID()
	f.store.AddDocument(models.Document{
		RegNumber:         "OUT-78",
		Stage:             models.StageDrafting,
		Deadline:          ptr(t0.Add(-time.Hour)),
		PrimaryExecutorID: &primary.ID,
		CoExecutorIDs:     []primitive.ObjectID{ghost},
	})

	vs, err := f.svc.Monitor.CheckOverdueDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, primary.ID, vs[0].UserID)
}

func TestCheckUpcomingDeadlines(t *testing.T) {
	tashkent := time.FixedZone("UZT", 5*60*60)
	f := newFixture(t, withConfig(func(c *workflow.Config) { c.DeadlineLocation = tashkent }))
	// 09:00 UTC is 14:00 local.
	ctx := context.Background()
	primary := f.user("Primary")
	co := f.user("Co")

	localMidnight := time.Date(2026, 3, 10, 0, 0, 0, 0, tashkent)
	today := f.store.AddDocument(models.Document{RegNumber: "D-1", Stage: models.StageExecution, Deadline: ptr(localMidnight.Add(time.Hour)), PrimaryExecutorID: &primary.ID, CoExecutorIDs: []primitive.ObjectID{co.ID}})
	f.store.AddDocument(models.Document{RegNumber: "D-2", Stage: models.StageExecution, Deadline: ptr(localMidnight.Add(47*time.Hour + 59*time.Minute + 59*time.Second)), PrimaryExecutorID: &primary.ID})
	f.store.AddDocument(models.Document{RegNumber: "D-3", Stage: models.StageExecution, Deadline: ptr(localMidnight.Add(48 * time.Hour)), PrimaryExecutorID: &primary.ID})
	f.store.AddDocument(models.Document{RegNumber: "D-4", Stage: models.StageArchived, Deadline: ptr(localMidnight.Add(2 * time.Hour)), PrimaryExecutorID: &primary.ID})

	sent, err := f.svc.Monitor.CheckUpcomingDeadlines(ctx)
	require.NoError(t, err)
	assert.Len(t, sent, 3)
	assert.Len(t, f.store.NotificationsFor(primary.ID), 2)
	coMsgs := f.store.NotificationsFor(co.ID)
	require.Len(t, coMsgs, 1)
	assert.Equal(t, "/documents/"+today.ID.Hex(), coMsgs[0].Link)
	assert.Empty(t, f.store.AllViolations())
}

func TestCheckUpcomingDeadlines_ReturnsOnlyDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	primary := f.user("Primary")
	f.store.AddDocument(models.Document{RegNumber: "D-9", Stage: models.StageExecution, Deadline: ptr(t0.Add(2 * time.Hour)), PrimaryExecutorID: &primary.ID})
	f.store.FailNotifications(errors.New("inbox unavailable"))

	sent, err := f.svc.Monitor.CheckUpcomingDeadlines(ctx)
	require.NoError(t, err)
	assert.Empty(t, sent)
	jobs := f.store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.SideEffectNotify, jobs[0].Kind)
	assert.False(t, jobs[0].Notification.CreatedAt.IsZero())
}

func TestStuckAndNearing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mk := func(minutesAgo int) models.StageOccupancy {
		doc := f.store.AddDocument(models.Document{Stage: models.StageRegistration})
		return f.store.AddOccupancy(models.StageOccupancy{
			DocumentID: doc.ID,
			Stage:      models.StageRegistration,
			EnteredAt:  t0.Add(-time.Duration(minutesAgo) * time.Minute),
		})
	}
	late := mk(150)
	nearly := mk(100)
	mk(60)

	stuck, err := f.svc.Monitor.StuckDocuments(ctx, models.StageRegistration)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, late.DocumentID, stuck[0].DocumentID)
	assert.Equal(t, int64(150), stuck[0].MinutesStuck)

	nearing, err := f.svc.Monitor.DocumentsNearingDeadline(ctx, models.StageRegistration, 0)
	require.NoError(t, err)
	require.Len(t, nearing, 2, "rows past the full budget are also nearing")
	byDoc := map[primitive.ObjectID]workflow.NearingDocument{}
	for _, n := range nearing {
		byDoc[n.DocumentID] = n
	}
	assert.Equal(t, int64(20), byDoc[nearly.DocumentID].MinutesRemaining)
	assert.Equal(t, int64(100), byDoc[nearly.DocumentID].MinutesElapsed)
	assert.Equal(t, int64(-30), byDoc[late.DocumentID].MinutesRemaining)

	unbounded, err := f.svc.Monitor.StuckDocuments(ctx, models.StageExecution)
	require.NoError(t, err)
	assert.Empty(t, unbounded)

	_, err = f.svc.Monitor.StuckDocuments(ctx, models.Stage("nowhere"))
	assert.True(t, apperr.IsValidation(err))
	_, err = f.svc.Monitor.DocumentsNearingDeadline(ctx, models.StageRegistration, 1.5)
	assert.True(t, apperr.IsValidation(err))
}

func TestStageStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := func(stage models.Stage, minutes int64, enteredAgo time.Duration) {
		doc := f.store.AddDocument(models.Document{Stage: stage})
		exited := t0.Add(-enteredAgo).Add(time.Duration(minutes) * time.Minute)
		f.store.AddOccupancy(models.StageOccupancy{
			DocumentID:      doc.ID,
			Stage:           stage,
			EnteredAt:       t0.Add(-enteredAgo),
			ExitedAt:        &exited,
			DurationMinutes: ptr(minutes),
		})
	}
	// registration (budget 120): two of three completed rows overran.
	closed(models.StageRegistration, 130, 10*day)
	closed(models.StageRegistration, 100, 10*day)
	closed(models.StageRegistration, 150, 10*day)
	// signature (budget 120): one of three.
	closed(models.StageSignature, 121, 2*day)
	closed(models.StageSignature, 10, 2*day)
	closed(models.StageSignature, 20, 2*day)
	// an open row counts as in progress only.
	openDoc := f.store.AddDocument(models.Document{Stage: models.StageSignature})
	f.store.AddOccupancy(models.StageOccupancy{DocumentID: openDoc.ID, Stage: models.StageSignature, EnteredAt: t0.Add(-time.Hour)})

	stats, err := f.svc.Monitor.StageStatistics(ctx, criteria.All())
	require.NoError(t, err)
	require.Len(t, stats, len(models.Stages))
	by := map[models.Stage]workflow.StageStats{}
	for _, s := range stats {
		by[s.Stage] = s
	}

	reg := by[models.StageRegistration]
	assert.Equal(t, int64(3), reg.Total)
	assert.Equal(t, int64(3), reg.Completed)
	assert.Equal(t, int64(2), reg.OverdueCount)
	assert.Equal(t, int64(67), reg.OverduePercentage)
	assert.InDelta(t, 126.7, reg.AverageDuration, 0.001)

	sig := by[models.StageSignature]
	assert.Equal(t, int64(4), sig.Total)
	assert.Equal(t, int64(1), sig.InProgress)
	assert.Equal(t, int64(33), sig.OverduePercentage)

	assert.Equal(t, int64(0), by[models.StageArchived].OverduePercentage)

	lastWeek, err := criteria.Between(t0.Add(-7*day), t0)
	require.NoError(t, err)
	stats, err = f.svc.Monitor.StageStatistics(ctx, lastWeek)
	require.NoError(t, err)
	for _, s := range stats {
		if s.Stage == models.StageRegistration {
			assert.Equal(t, int64(0), s.Total)
		}
	}
}
