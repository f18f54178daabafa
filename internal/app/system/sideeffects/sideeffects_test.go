package sideeffects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	err  error
	sent []models.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n models.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeAuditor struct {
	err     error
	records []models.AuditRecord
}

func (f *fakeAuditor) Record(_ context.Context, rec models.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeQueue struct {
	err  error
	jobs []models.SideEffectJob
}

func (f *fakeQueue) Enqueue(_ context.Context, job models.SideEffectJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestOutbox(t *testing.T) {
	out := NewOutbox()
	user := primitive.NewObjectID()
	out.Add(Notify(user, "hello", ""), Audit(models.AuditRecord{Action: "x"}))
	if out.Len() != 2 {
		t.Fatalf("Len = %d, want 2", out.Len())
	}
	effects := out.Effects()
	effects[0].Kind = "mutated"
	if out.Effects()[0].Kind != models.SideEffectNotify {
		t.Error("Effects should return a copy")
	}
	out.Reset()
	if out.Len() != 0 {
		t.Errorf("Len after Reset = %d", out.Len())
	}
}

func TestFlush_AllDelivered(t *testing.T) {
	n, a, q := &fakeNotifier{}, &fakeAuditor{}, &fakeQueue{}
	d := NewDispatcher(n, a, q, zap.NewNop(), 3)

	out := NewOutbox()
	out.Add(Notify(primitive.NewObjectID(), "hi", "/documents/1"), Audit(models.AuditRecord{Action: "stage_transition"}))
	rep := d.Flush(context.Background(), out)

	if len(rep.Failed()) != 0 {
		t.Fatalf("unexpected failures: %+v", rep.Failed())
	}
	if len(rep.Delivered()) != 2 {
		t.Errorf("Delivered = %d, want 2", len(rep.Delivered()))
	}
	if len(n.sent) != 1 || n.sent[0].CreatedAt.IsZero() {
		t.Errorf("notification not stamped: %+v", n.sent)
	}
	if len(a.records) != 1 || len(q.jobs) != 0 {
		t.Errorf("records=%d jobs=%d", len(a.records), len(q.jobs))
	}
}

func TestDeliver_RetryableFailureIsQueued(t *testing.T) {
	n := &fakeNotifier{err: errors.New("connection reset")}
	q := &fakeQueue{}
	d := NewDispatcher(n, &fakeAuditor{}, q, zap.NewNop(), 4)

	res := d.Deliver(context.Background(), Notify(primitive.NewObjectID(), "hi", ""))
	if res.OK() || !res.Retryable || !res.Queued {
		t.Fatalf("result = %+v, want retryable and queued", res)
	}
	if apperr.KindOf(res.Err) != apperr.KindSideEffect {
		t.Errorf("error kind = %v", apperr.KindOf(res.Err))
	}
	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Attempts != 1 || job.MaxAttempts != 4 || job.Status != models.JobPending || job.CorrelationID == "" {
		t.Errorf("job = %+v", job)
	}
}

func TestDeliver_QueuedNotificationKeepsRaisedAt(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(&fakeNotifier{err: errors.New("connection reset")}, &fakeAuditor{}, q, zap.NewNop(), 3)
	later := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return later }

	raised := Notify(primitive.NewObjectID(), "due today", "")
	d.Deliver(context.Background(), raised)

	undated := Effect{Kind: models.SideEffectNotify, Notification: &models.Notification{UserID: primitive.NewObjectID(), Message: "hand built"}}
	d.Deliver(context.Background(), undated)

	if len(q.jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(q.jobs))
	}
	if got := q.jobs[0].Notification.CreatedAt; !got.Equal(raised.Notification.CreatedAt) || got.IsZero() {
		t.Errorf("queued notification dated %v, raised at %v", got, raised.Notification.CreatedAt)
	}
	if got := q.jobs[1].Notification.CreatedAt; !got.Equal(later) {
		t.Errorf("undated notification should be stamped at delivery, got %v", got)
	}
	if !undated.Notification.CreatedAt.IsZero() {
		t.Error("caller's notification was modified")
	}
}

func TestDeliver_FatalFailureIsDropped(t *testing.T) {
	a := &fakeAuditor{err: apperr.Validation("audit", "bad record", nil)}
	q := &fakeQueue{}
	d := NewDispatcher(&fakeNotifier{}, a, q, zap.NewNop(), 0)

	res := d.Deliver(context.Background(), Audit(models.AuditRecord{Action: "x"}))
	if res.OK() || res.Retryable || res.Queued {
		t.Fatalf("result = %+v, want fatal", res)
	}
	if len(q.jobs) != 0 {
		t.Errorf("fatal failure should not be queued")
	}
}

func TestDeliver_QueueFailureIsReported(t *testing.T) {
	n := &fakeNotifier{err: errors.New("timeout")}
	q := &fakeQueue{err: errors.New("queue down")}
	d := NewDispatcher(n, &fakeAuditor{}, q, zap.NewNop(), 0)

	res := d.Deliver(context.Background(), Notify(primitive.NewObjectID(), "hi", ""))
	if res.OK() || !res.Retryable || res.Queued {
		t.Fatalf("result = %+v, want retryable but not queued", res)
	}
}

func TestDeliver_SurvivesCanceledContext(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(n, &fakeAuditor{}, nil, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Deliver(ctx, Notify(primitive.NewObjectID(), "hi", ""))
	if !res.OK() {
		t.Fatalf("delivery after request cancel failed: %v", res.Err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), true},
		{"validation", apperr.Validation("op", "bad", nil), false},
		{"not found", apperr.NotFound("op", "gone"), false},
		{"configuration", apperr.Configuration("op", "missing"), false},
		{"conflict", apperr.Conflict("op", "busy"), true},
		{"no sink", errNoSink, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExecute_UnknownKind(t *testing.T) {
	d := NewDispatcher(&fakeNotifier{}, &fakeAuditor{}, nil, zap.NewNop(), 0)
	err := d.Execute(context.Background(), Effect{Kind: "carrier-pigeon"})
	if !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation", err)
	}
}
