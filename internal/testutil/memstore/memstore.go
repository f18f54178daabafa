// Package memstore is an in-memory implementation of the workflow ports for
// tests. Run gives transactions with rollback: a failing body leaves the
// store exactly as it found it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type txKey struct{}

// Store holds every collection the workflow touches.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	docs       map[primitive.ObjectID]models.Document
	history    []models.StageOccupancy
	violations []models.Violation
	kpi        map[primitive.ObjectID]models.KPIRecord
	users      map[primitive.ObjectID]models.User

	notifications []models.Notification
	audits        []models.AuditRecord
	jobs          []models.SideEffectJob

	notifyErr error
	auditErr  error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs:  map[primitive.ObjectID]models.Document{},
		kpi:   map[primitive.ObjectID]models.KPIRecord{},
		users: map[primitive.ObjectID]models.User{},
	}
}

type snapshot struct {
	docs       map[primitive.ObjectID]models.Document
	history    []models.StageOccupancy
	violations []models.Violation
	kpi        map[primitive.ObjectID]models.KPIRecord
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		docs:       make(map[primitive.ObjectID]models.Document, len(s.docs)),
		history:    append([]models.StageOccupancy(nil), s.history...),
		violations: append([]models.Violation(nil), s.violations...),
		kpi:        make(map[primitive.ObjectID]models.KPIRecord, len(s.kpi)),
	}
	for k, v := range s.docs {
		snap.docs[k] = v
	}
	for k, v := range s.kpi {
		snap.kpi[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = snap.docs
	s.history = snap.history
	s.violations = snap.violations
	s.kpi = snap.kpi
}

// Run executes fn as one transaction. Nested calls join the outer one.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Documents returns the document repository view.
func (s *Store) Documents() *Documents { return &Documents{s} }

// History returns the stage history repository view.
func (s *Store) History() *History { return &History{s} }

// Violations returns the violation repository view.
func (s *Store) Violations() *Violations { return &Violations{s} }

// KPI returns the KPI store view.
func (s *Store) KPI() *KPI { return &KPI{s} }

// Users returns the user directory view.
func (s *Store) Users() *Users { return &Users{s} }

// Notifier returns the notification sink.
func (s *Store) Notifier() *Notifier { return &Notifier{s} }

// Auditor returns the audit sink.
func (s *Store) Auditor() *Auditor { return &Auditor{s} }

// Queue returns the side-effect retry queue.
func (s *Store) Queue() *Queue { return &Queue{s} }

// ---- seeding and inspection ----

// AddDocument stores d, assigning an id when it has none.
func (s *Store) AddDocument(d models.Document) models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if d.Status == "" {
		d.Status = models.DocumentStatusNew
	}
	s.docs[d.ID] = d
	return d
}

// AddUser stores u, assigning an id when it has none.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = u
	return u
}

// AddKPI stores r, assigning an id when it has none.
func (s *Store) AddKPI(r models.KPIRecord) models.KPIRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.kpi[r.ID] = r
	return r
}

// AddViolation stores v as-is, bypassing the ledger.
func (s *Store) AddViolation(v models.Violation) models.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	s.violations = append(s.violations, v)
	return v
}

// AddOccupancy stores o as-is, bypassing the engine.
func (s *Store) AddOccupancy(o models.StageOccupancy) models.StageOccupancy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	o.Open = o.ExitedAt == nil
	s.history = append(s.history, o)
	return o
}

// Document returns the stored document.
func (s *Store) Document(id primitive.ObjectID) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d, ok
}

// KPIRecord returns the stored KPI record.
func (s *Store) KPIRecord(id primitive.ObjectID) models.KPIRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kpi[id]
}

// OpenRows counts open occupancy rows for a document.
func (s *Store) OpenRows(docID primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.history {
		if o.DocumentID == docID && o.Open {
			n++
		}
	}
	return n
}

// AllViolations returns every stored violation.
func (s *Store) AllViolations() []models.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Violation(nil), s.violations...)
}

// Notifications returns delivered notifications.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

// NotificationsFor returns notifications delivered to user.
func (s *Store) NotificationsFor(user primitive.ObjectID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == user {
			out = append(out, n)
		}
	}
	return out
}

// Audits returns recorded audit entries.
func (s *Store) Audits() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditRecord(nil), s.audits...)
}

// Jobs returns queued side-effect jobs.
func (s *Store) Jobs() []models.SideEffectJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SideEffectJob(nil), s.jobs...)
}

// FailNotifications makes every Notify call return err until cleared with
// nil.
func (s *Store) FailNotifications(err error) {
	s.mu.Lock()
	s.notifyErr = err
	s.mu.Unlock()
}

// FailAudits makes every Record call return err until cleared with nil.
func (s *Store) FailAudits(err error) {
	s.mu.Lock()
	s.auditErr = err
	s.mu.Unlock()
}

// ---- documents ----

// Documents implements workflow.DocumentRepo.
type Documents struct{ s *Store }

var _ workflow.DocumentRepo = (*Documents)(nil)

func docNotFound(op string, id primitive.ObjectID) error {
	return apperr.NotFound(op, "document %s not found", id.Hex())
}

func (r *Documents) update(op string, id primitive.ObjectID, fn func(d *models.Document) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.docs[id]
	if !ok {
		return docNotFound(op, id)
	}
	if err := fn(&d); err != nil {
		return err
	}
	r.s.docs[id] = d
	return nil
}

func (r *Documents) GetByID(_ context.Context, id primitive.ObjectID) (models.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.docs[id]
	if !ok {
		return models.Document{}, docNotFound("documents.GetByID", id)
	}
	return d, nil
}

func (r *Documents) SetStage(_ context.Context, id primitive.ObjectID, stage models.Stage, expectedVersion int64, now time.Time) error {
	const op = "documents.SetStage"
	return r.update(op, id, func(d *models.Document) error {
		if d.StageVersion != expectedVersion {
			return apperr.Conflict(op, "document %s changed concurrently", id.Hex())
		}
		d.Stage = stage
		d.StageVersion++
		d.UpdatedAt = now
		return nil
	})
}

func (r *Documents) ApplyResolution(_ context.Context, id primitive.ObjectID, upd workflow.ResolutionUpdate) error {
	return r.update("documents.ApplyResolution", id, func(d *models.Document) error {
		resolvedAt := upd.ResolvedAt
		resolvedBy := upd.ResolvedByID
		d.ResolutionText = upd.Text
		d.ResolutionNotes = upd.Notes
		d.Priority = upd.Priority
		d.Deadline = upd.Deadline
		d.PrimaryExecutorID = upd.PrimaryExecutorID
		d.CoExecutorIDs = append([]primitive.ObjectID(nil), upd.CoExecutorIDs...)
		d.Reviewers = append([]models.Reviewer(nil), upd.Reviewers...)
		d.Contributors = append([]models.Contributor(nil), upd.Contributors...)
		d.ResolvedByID = &resolvedBy
		d.ResolvedAt = &resolvedAt
		d.Status = upd.Status
		d.UpdatedAt = resolvedAt
		return nil
	})
}

func (r *Documents) SetPrimaryExecutor(_ context.Context, id, executor primitive.ObjectID, now time.Time) error {
	return r.update("documents.SetPrimaryExecutor", id, func(d *models.Document) error {
		d.PrimaryExecutorID = &executor
		d.UpdatedAt = now
		return nil
	})
}

func (r *Documents) MarkCompleted(_ context.Context, id primitive.ObjectID, notes string, now time.Time) error {
	return r.update("documents.MarkCompleted", id, func(d *models.Document) error {
		d.Status = models.DocumentStatusDone
		d.CompletionNotes = notes
		d.CompletedAt = &now
		d.UpdatedAt = now
		return nil
	})
}

func (r *Documents) SetEscalationMarker(_ context.Context, id primitive.ObjectID, marker models.EscalationMarker) error {
	return r.update("documents.SetEscalationMarker", id, func(d *models.Document) error {
		d.OverdueEscalation = &marker
		return nil
	})
}

func (r *Documents) filter(keep func(d models.Document) bool) []models.Document {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Document
	for _, d := range r.s.docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func inStages(s models.Stage, set []models.Stage) bool {
	for _, t := range set {
		if s == t {
			return true
		}
	}
	return false
}

func (r *Documents) ListOverdue(_ context.Context, now time.Time, terminal []models.Stage) ([]models.Document, error) {
	return r.filter(func(d models.Document) bool {
		return d.Deadline != nil && d.Deadline.Before(now) && !inStages(d.Stage, terminal) && d.PrimaryExecutorID != nil
	}), nil
}

func (r *Documents) ListDueBetween(_ context.Context, from, to time.Time, terminal []models.Stage) ([]models.Document, error) {
	return r.filter(func(d models.Document) bool {
		return d.Deadline != nil && !d.Deadline.Before(from) && !d.Deadline.After(to) && !inStages(d.Stage, terminal)
	}), nil
}

func (r *Documents) ListAssigned(_ context.Context, c criteria.Criteria) ([]models.Document, error) {
	return r.filter(func(d models.Document) bool {
		if d.PrimaryExecutorID == nil {
			return false
		}
		switch c.Kind() {
		case criteria.KindDateRange:
			return c.InRange(d.CreatedAt)
		case criteria.KindDepartment:
			dept, _ := c.DepartmentID()
			return d.DepartmentID != nil && *d.DepartmentID == dept
		case criteria.KindUser:
			user, _ := c.UserID()
			return d.HasExecutor(user)
		}
		return true
	}), nil
}

func (r *Documents) ListByRole(_ context.Context, user primitive.ObjectID, role models.ExecutorRole) ([]models.Document, error) {
	return r.filter(func(d models.Document) bool {
		switch role {
		case models.ExecutorPrimary:
			return d.PrimaryExecutorID != nil && *d.PrimaryExecutorID == user
		case models.ExecutorEqual:
			return containsID(d.EqualExecutorIDs(), user)
		case models.ExecutorCo:
			return containsID(d.CoExecutorIDs, user)
		case models.ExecutorAssistant:
			as := d.AssistantID()
			return as != nil && *as == user
		}
		return false
	}), nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ---- stage history ----

// History implements workflow.HistoryRepo.
type History struct{ s *Store }

var _ workflow.HistoryRepo = (*History)(nil)

func (r *History) OpenFor(_ context.Context, documentID primitive.ObjectID) (*models.StageOccupancy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.history {
		if o.DocumentID == documentID && o.Open {
			occ := o
			return &occ, nil
		}
	}
	return nil, nil
}

func (r *History) Close(_ context.Context, id primitive.ObjectID, exitedAt time.Time, durationMinutes int64) error {
	const op = "stagehistory.Close"
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, o := range r.s.history {
		if o.ID != id {
			continue
		}
		if !o.Open {
			return apperr.Invariant(op, "occupancy %s is already closed", id.Hex())
		}
		dur := durationMinutes
		o.ExitedAt = &exitedAt
		o.DurationMinutes = &dur
		o.Open = false
		r.s.history[i] = o
		return nil
	}
	return apperr.NotFound(op, "occupancy %s not found", id.Hex())
}

func (r *History) Open(_ context.Context, occ models.StageOccupancy) (models.StageOccupancy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.history {
		if o.DocumentID == occ.DocumentID && o.Open {
			return models.StageOccupancy{}, apperr.Invariant("stagehistory.Open", "document %s already has an open occupancy", occ.DocumentID.Hex())
		}
	}
	if occ.ID.IsZero() {
		occ.ID = primitive.NewObjectID()
	}
	occ.Open = true
	occ.ExitedAt = nil
	occ.DurationMinutes = nil
	r.s.history = append(r.s.history, occ)
	return occ, nil
}

func (r *History) rows(keep func(o models.StageOccupancy) bool) []models.StageOccupancy {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StageOccupancy
	for _, o := range r.s.history {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EnteredAt.Before(out[j].EnteredAt) })
	return out
}

func (r *History) ListForDocument(_ context.Context, documentID primitive.ObjectID) ([]models.StageOccupancy, error) {
	return r.rows(func(o models.StageOccupancy) bool { return o.DocumentID == documentID }), nil
}

func (r *History) ListOpenEnteredBefore(_ context.Context, stage models.Stage, cutoff time.Time) ([]models.StageOccupancy, error) {
	return r.rows(func(o models.StageOccupancy) bool {
		return o.Open && o.Stage == stage && o.EnteredAt.Before(cutoff)
	}), nil
}

func (r *History) ListEntered(_ context.Context, c criteria.Criteria) ([]models.StageOccupancy, error) {
	var deptDocs map[primitive.ObjectID]bool
	if dept, ok := c.DepartmentID(); ok {
		deptDocs = map[primitive.ObjectID]bool{}
		r.s.mu.Lock()
		for id, d := range r.s.docs {
			if d.DepartmentID != nil && *d.DepartmentID == dept {
				deptDocs[id] = true
			}
		}
		r.s.mu.Unlock()
	}
	return r.rows(func(o models.StageOccupancy) bool {
		switch c.Kind() {
		case criteria.KindDateRange:
			return c.InRange(o.EnteredAt)
		case criteria.KindUser:
			user, _ := c.UserID()
			return o.PerformedBy != nil && *o.PerformedBy == user
		case criteria.KindDepartment:
			return deptDocs[o.DocumentID]
		}
		return true
	}), nil
}

// ---- violations ----

// Violations implements workflow.ViolationRepo.
type Violations struct{ s *Store }

var _ workflow.ViolationRepo = (*Violations)(nil)

func (r *Violations) Insert(_ context.Context, v models.Violation) (models.Violation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	r.s.violations = append(r.s.violations, v)
	return v, nil
}

func (r *Violations) CountSince(_ context.Context, user primitive.ObjectID, since *time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, v := range r.s.violations {
		if v.UserID != user {
			continue
		}
		if since != nil && v.CreatedAt.Before(*since) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *Violations) DeleteOlderThan(_ context.Context, user primitive.ObjectID, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.violations[:0:0]
	var n int64
	for _, v := range r.s.violations {
		if v.UserID == user && v.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, v)
	}
	r.s.violations = kept
	return n, nil
}

func (r *Violations) ListForUser(_ context.Context, user primitive.ObjectID) ([]models.Violation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Violation
	for _, v := range r.s.violations {
		if v.UserID == user {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Violations) List(_ context.Context, c criteria.Criteria) ([]models.Violation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Violation
	for _, v := range r.s.violations {
		switch c.Kind() {
		case criteria.KindDateRange:
			if !c.InRange(v.CreatedAt) {
				continue
			}
		case criteria.KindUser:
			if user, _ := c.UserID(); v.UserID != user {
				continue
			}
		case criteria.KindDepartment:
			dept, _ := c.DepartmentID()
			u, ok := r.s.users[v.UserID]
			if !ok || u.DepartmentID == nil || *u.DepartmentID != dept {
				continue
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// ---- kpi ----

// KPI implements workflow.KPIStore.
type KPI struct{ s *Store }

var _ workflow.KPIStore = (*KPI)(nil)

func (r *KPI) CurrentPeriod(_ context.Context, user primitive.ObjectID, now time.Time) (*models.KPIRecord, error) {
	period := now.UTC().Format(models.KPIPeriodLayout)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.kpi {
		if rec.UserID == user && rec.Period == period {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (r *KPI) ApplyPenalty(_ context.Context, recordID primitive.ObjectID, amount float64, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.kpi[recordID]
	if !ok {
		return apperr.NotFound("kpi.ApplyPenalty", "kpi record %s not found", recordID.Hex())
	}
	rec.Score -= amount
	if rec.Score < 0 {
		rec.Score = 0
	}
	rec.PenaltyTotal += amount
	rec.UpdatedAt = now
	r.s.kpi[recordID] = rec
	return nil
}

// ---- users ----

// Users implements workflow.UserDirectory.
type Users struct{ s *Store }

var _ workflow.UserDirectory = (*Users)(nil)

func (r *Users) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, apperr.NotFound("users.GetByID", "user %s not found", id.Hex())
	}
	return u, nil
}

// ---- sinks ----

// Notifier records delivered notifications.
type Notifier struct{ s *Store }

func (n *Notifier) Notify(_ context.Context, msg models.Notification) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.notifyErr != nil {
		return n.s.notifyErr
	}
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	n.s.notifications = append(n.s.notifications, msg)
	return nil
}

// Auditor records audit entries.
type Auditor struct{ s *Store }

func (a *Auditor) Record(_ context.Context, rec models.AuditRecord) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.s.auditErr != nil {
		return a.s.auditErr
	}
	a.s.audits = append(a.s.audits, rec)
	return nil
}

// Queue stores side-effect jobs.
type Queue struct{ s *Store }

func (q *Queue) Enqueue(_ context.Context, job models.SideEffectJob) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	q.s.jobs = append(q.s.jobs, job)
	return nil
}
