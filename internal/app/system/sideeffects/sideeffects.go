// Package sideeffects delivers notifications and audit records after the
// mutation that produced them has committed.
//
// A side effect never fails its primary operation. Each delivery yields a
// Result: retryable failures are handed to a persistent retry queue, fatal
// ones are logged and dropped.
package sideeffects

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Auditor stores an audit record.
type Auditor interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

// Queue persists failed side effects for later retry.
type Queue interface {
	Enqueue(ctx context.Context, job models.SideEffectJob) error
}

// Effect is one pending notification or audit write.
type Effect struct {
	Kind         string
	Notification *models.Notification
	Audit        *models.AuditRecord
}

// Notify builds a notification effect dated now. The date survives retries.
func Notify(userID primitive.ObjectID, message, link string) Effect {
	return Effect{
		Kind: models.SideEffectNotify,
		Notification: &models.Notification{
			UserID:    userID,
			Message:   message,
			Link:      link,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// dated returns e with an undated notification stamped at now. The
// caller's notification is not modified.
func dated(e Effect, now time.Time) Effect {
	if e.Notification != nil && e.Notification.CreatedAt.IsZero() {
		n := *e.Notification
		n.CreatedAt = now
		e.Notification = &n
	}
	return e
}

// Audit builds an audit effect.
func Audit(rec models.AuditRecord) Effect {
	return Effect{Kind: models.SideEffectAudit, Audit: &rec}
}

// Outbox collects effects while a transaction runs. Nothing in it is
// delivered until the caller flushes it after commit.
type Outbox struct {
	mu      sync.Mutex
	effects []Effect
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox { return &Outbox{} }

// Add appends effects.
func (o *Outbox) Add(effects ...Effect) {
	o.mu.Lock()
	o.effects = append(o.effects, effects...)
	o.mu.Unlock()
}

// Effects returns a copy of the collected effects.
func (o *Outbox) Effects() []Effect {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Effect, len(o.effects))
	copy(out, o.effects)
	return out
}

// Reset drops everything collected so far. Used when a transaction body is
// retried so effects are not duplicated.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.effects = nil
	o.mu.Unlock()
}

// Len returns the number of collected effects.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.effects)
}

// Result is the outcome of delivering one effect.
type Result struct {
	Effect    Effect
	Err       error
	Retryable bool
	Queued    bool
}

// OK reports a successful delivery.
func (r Result) OK() bool { return r.Err == nil }

// Report collects the results of a flush.
type Report struct {
	Results []Result
}

// Failed returns the results that did not deliver.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Delivered returns the effects that were delivered.
func (r Report) Delivered() []Effect {
	var out []Effect
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.Effect)
		}
	}
	return out
}

// Retryable reports whether err is worth retrying. Bad input, missing
// targets and misconfiguration will fail the same way next time.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConfiguration, apperr.KindInvariant:
		return false
	}
	return !errors.Is(err, errNoSink)
}

var errNoSink = errors.New("no sink configured for effect kind")

// DefaultMaxAttempts bounds retries when the dispatcher is not configured.
const DefaultMaxAttempts = 5

// Dispatcher delivers effects to their sinks.
type Dispatcher struct {
	notifier    Notifier
	auditor     Auditor
	queue       Queue
	log         *zap.Logger
	maxAttempts int
	timeout     time.Duration
	now         func() time.Time
}

// NewDispatcher wires the sinks. queue may be nil, in which case retryable
// failures are only logged.
func NewDispatcher(notifier Notifier, auditor Auditor, queue Queue, log *zap.Logger, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		notifier:    notifier,
		auditor:     auditor,
		queue:       queue,
		log:         log,
		maxAttempts: maxAttempts,
		timeout:     5 * time.Second,
		now:         time.Now,
	}
}

// Execute performs an effect once with no retry handling. The retry worker
// calls this directly.
func (d *Dispatcher) Execute(ctx context.Context, e Effect) error {
	switch e.Kind {
	case models.SideEffectNotify:
		if d.notifier == nil || e.Notification == nil {
			return errNoSink
		}
		return d.notifier.Notify(ctx, *dated(e, d.now().UTC()).Notification)
	case models.SideEffectAudit:
		if d.auditor == nil || e.Audit == nil {
			return errNoSink
		}
		return d.auditor.Record(ctx, *e.Audit)
	default:
		return apperr.Validation("sideeffects.Execute", "unknown effect kind "+e.Kind, nil)
	}
}

// Deliver performs one effect and routes its failure.
func (d *Dispatcher) Deliver(ctx context.Context, e Effect) Result {
	// Side effects outlive the request that caused them.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	e = dated(e, d.now().UTC())
	err := d.Execute(ctx, e)
	if err == nil {
		return Result{Effect: e}
	}

	res := Result{Effect: e, Err: apperr.SideEffect("deliver "+e.Kind, err), Retryable: Retryable(err)}
	fields := effectFields(e)
	fields = append(fields, zap.Error(err), zap.Bool("retryable", res.Retryable))

	if !res.Retryable {
		d.log.Error("side effect failed permanently", fields...)
		return res
	}
	if d.queue == nil {
		d.log.Error("side effect failed and no retry queue is configured", fields...)
		return res
	}

	now := d.now().UTC()
	job := models.SideEffectJob{
		CorrelationID: uuid.NewString(),
		Kind:          e.Kind,
		Notification:  e.Notification,
		Audit:         e.Audit,
		Status:        models.JobPending,
		Attempts:      1,
		MaxAttempts:   d.maxAttempts,
		LastError:     err.Error(),
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if qerr := d.queue.Enqueue(ctx, job); qerr != nil {
		d.log.Error("failed to enqueue side effect for retry", append(fields, zap.NamedError("enqueue_error", qerr))...)
		return res
	}
	res.Queued = true
	d.log.Warn("side effect queued for retry", append(fields, zap.String("correlation_id", job.CorrelationID))...)
	return res
}

// Flush delivers every effect in the outbox in order.
func (d *Dispatcher) Flush(ctx context.Context, out *Outbox) Report {
	var rep Report
	if out == nil {
		return rep
	}
	for _, e := range out.Effects() {
		rep.Results = append(rep.Results, d.Deliver(ctx, e))
	}
	return rep
}

func effectFields(e Effect) []zap.Field {
	fields := []zap.Field{zap.String("kind", e.Kind)}
	if e.Notification != nil {
		fields = append(fields, zap.String("user_id", e.Notification.UserID.Hex()))
	}
	if e.Audit != nil {
		fields = append(fields, zap.String("action", e.Audit.Action))
		if e.Audit.DocumentID != nil {
			fields = append(fields, zap.String("document_id", e.Audit.DocumentID.Hex()))
		}
	}
	return fields
}
