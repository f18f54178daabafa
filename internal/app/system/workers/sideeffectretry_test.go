package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type call struct {
	op       string
	id       primitive.ObjectID
	attempts int
	next     time.Time
	lastErr  string
}

type fakeQueue struct {
	due   []models.SideEffectJob
	calls []call
}

func (q *fakeQueue) ClaimDue(_ context.Context, _ time.Time, limit int) ([]models.SideEffectJob, error) {
	n := min(limit, len(q.due))
	out := q.due[:n]
	q.due = q.due[n:]
	return out, nil
}

func (q *fakeQueue) Complete(_ context.Context, id primitive.ObjectID, attempts int, _ time.Time) error {
	q.calls = append(q.calls, call{op: "complete", id: id, attempts: attempts})
	return nil
}

func (q *fakeQueue) Reschedule(_ context.Context, id primitive.ObjectID, attempts int, next time.Time, lastErr string, _ time.Time) error {
	q.calls = append(q.calls, call{op: "reschedule", id: id, attempts: attempts, next: next, lastErr: lastErr})
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, id primitive.ObjectID, attempts int, lastErr string, _ time.Time) error {
	q.calls = append(q.calls, call{op: "fail", id: id, attempts: attempts, lastErr: lastErr})
	return nil
}

type fakeExec struct {
	errs map[string]error // keyed by notification message
}

func (e fakeExec) Execute(_ context.Context, eff sideeffects.Effect) error {
	if eff.Notification == nil {
		return nil
	}
	return e.errs[eff.Notification.Message]
}

func job(msg string, attempts int) models.SideEffectJob {
	return models.SideEffectJob{
		ID:           primitive.NewObjectID(),
		Kind:         models.SideEffectNotify,
		Notification: &models.Notification{UserID: primitive.NewObjectID(), Message: msg},
		Status:       models.JobProcessing,
		Attempts:     attempts,
		MaxAttempts:  3,
	}
}

func TestSideEffectRetry_Backoff(t *testing.T) {
	w := NewSideEffectRetry(&fakeQueue{}, fakeExec{}, zap.NewNop(), time.Minute)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{30, time.Hour},
	}
	for _, tt := range tests {
		if got := w.Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestSideEffectRetry_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	ok := job("ok", 1)
	flaky := job("flaky", 1)
	exhausted := job("exhausted", 2)
	broken := job("broken", 1)

	q := &fakeQueue{due: []models.SideEffectJob{ok, flaky, exhausted, broken}}
	exec := fakeExec{errs: map[string]error{
		"flaky":     errors.New("connection reset"),
		"exhausted": errors.New("connection reset"),
		"broken":    apperr.Validation("notify", "bad recipient", nil),
	}}
	w := NewSideEffectRetry(q, exec, zap.NewNop(), time.Minute)
	w.now = func() time.Time { return now }

	delivered, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if delivered != 1 {
		t.Errorf("delivered: got %d, want 1", delivered)
	}

	want := map[primitive.ObjectID]call{
		ok.ID:        {op: "complete", attempts: 2},
		flaky.ID:     {op: "reschedule", attempts: 2, next: now.Add(2 * time.Minute), lastErr: "connection reset"},
		exhausted.ID: {op: "fail", attempts: 3, lastErr: "connection reset"},
		broken.ID:    {op: "fail", attempts: 2},
	}
	if len(q.calls) != len(want) {
		t.Fatalf("got %d queue calls, want %d", len(q.calls), len(want))
	}
	for _, c := range q.calls {
		exp, found := want[c.id]
		if !found {
			t.Errorf("unexpected call for %s", c.id.Hex())
			continue
		}
		if c.op != exp.op || c.attempts != exp.attempts {
			t.Errorf("%s: got %s/%d, want %s/%d", c.id.Hex(), c.op, c.attempts, exp.op, exp.attempts)
		}
		if !exp.next.IsZero() && !c.next.Equal(exp.next) {
			t.Errorf("%s: next attempt %v, want %v", c.id.Hex(), c.next, exp.next)
		}
		if exp.lastErr != "" && c.lastErr != exp.lastErr {
			t.Errorf("%s: last error %q, want %q", c.id.Hex(), c.lastErr, exp.lastErr)
		}
	}
}

func TestSideEffectRetry_StartStop(t *testing.T) {
	q := &fakeQueue{due: []models.SideEffectJob{job("ok", 1)}}
	w := NewSideEffectRetry(q, fakeExec{}, zap.NewNop(), 10*time.Millisecond)
	w.Start()
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	if len(q.calls) != 1 || q.calls[0].op != "complete" {
		t.Errorf("expected the queued job to be delivered by the loop, got %+v", q.calls)
	}
}
