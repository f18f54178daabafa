package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/keylock"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type policyKind int

const (
	policyDefault policyKind = iota
	policyTrailing
	policyAllTime
)

// Policy selects which prior violations count toward the next level.
//
// Manual disciplinary actions count a trailing window of months; automatic
// escalations (stage overruns, overdue deadlines) count every violation the
// user ever received. The two are kept apart on purpose.
type Policy struct {
	kind   policyKind
	months int
}

// TrailingMonths counts violations from the last n months.
func TrailingMonths(n int) Policy { return Policy{kind: policyTrailing, months: n} }

// AllTime counts every violation.
var AllTime = Policy{kind: policyAllTime}

// IsZero reports an unset policy. The ledger substitutes its manual window.
func (p Policy) IsZero() bool { return p.kind == policyDefault }

// Since returns the lower bound for counting, or nil for all time.
func (p Policy) Since(now time.Time) *time.Time {
	if p.kind != policyTrailing {
		return nil
	}
	t := now.AddDate(0, -p.months, 0)
	return &t
}

func (p Policy) String() string {
	switch p.kind {
	case policyTrailing:
		return fmt.Sprintf("trailing_%d_months", p.months)
	case policyAllTime:
		return "all_time"
	}
	return "default"
}

// Action is a request to sanction a user.
type Action struct {
	UserID     primitive.ObjectID
	Kind       string
	Reason     string
	DocumentID *primitive.ObjectID
	ActorID    *primitive.ObjectID
	Policy     Policy
}

// Outcome is the result of a disciplinary action. ViolationCount includes
// the violation just written.
type Outcome struct {
	Violation      models.Violation         `json:"violation"`
	Level          models.DisciplinaryLevel `json:"level"`
	ViolationCount int64                    `json:"violation_count"`
	Message        string                   `json:"message"`
}

// ViolationStats aggregates violations.
type ViolationStats struct {
	Total         int64                              `json:"total"`
	ByLevel       map[models.DisciplinaryLevel]int64 `json:"by_level"`
	ByKind        map[string]int64                   `json:"by_kind"`
	DistinctUsers int                                `json:"distinct_users"`
}

// HistoryEntry is a violation with the level its position implies.
type HistoryEntry struct {
	Violation models.Violation         `json:"violation"`
	Ordinal   int                      `json:"ordinal"`
	Level     models.DisciplinaryLevel `json:"level"`
}

// RetentionPeriod is how long violations are kept before
// ResetDisciplinaryRecord prunes them.
const RetentionPeriod = 1 // years

// Ledger is the escalation ledger.
type Ledger struct {
	docs       DocumentRepo
	violations ViolationRepo
	kpi        KPIStore
	users      UserDirectory
	tx         TxRunner
	effects    EffectFlusher
	manual     Policy
	locks      *keylock.Locker
	log        *zap.Logger
	now        func() time.Time
}

// ManualPolicy is the policy applied when an Action leaves Policy unset.
func (l *Ledger) ManualPolicy() Policy { return l.manual }

// ViolationCount counts the user's violations under policy.
func (l *Ledger) ViolationCount(ctx context.Context, user primitive.ObjectID, policy Policy) (int64, error) {
	if policy.IsZero() {
		policy = l.manual
	}
	return l.violations.CountSince(ctx, user, policy.Since(l.now().UTC()))
}

// ApplyDisciplinaryAction sanctions a user. The violation insert and the KPI
// penalty commit together; notifications go out after commit.
func (l *Ledger) ApplyDisciplinaryAction(ctx context.Context, a Action) (Outcome, error) {
	const op = "ledger.ApplyDisciplinaryAction"

	a.Reason = strings.TrimSpace(a.Reason)
	if a.Kind == "" {
		a.Kind = models.ViolationManual
	}
	fields := map[string]string{}
	if a.UserID.IsZero() {
		fields["user_id"] = "required"
	}
	if a.Reason == "" {
		fields["reason"] = "required"
	}
	if !models.IsViolationKind(a.Kind) {
		fields["kind"] = "unknown violation kind"
	}
	if len(fields) > 0 {
		return Outcome{}, apperr.Validation(op, "invalid disciplinary action", fields)
	}
	if _, err := l.users.GetByID(ctx, a.UserID); err != nil {
		return Outcome{}, err
	}
	if a.DocumentID != nil {
		if _, err := l.docs.GetByID(ctx, *a.DocumentID); err != nil {
			return Outcome{}, err
		}
	}

	held := l.locks.Hold()
	defer held.Release()
	held.Lock(userLockKey(a.UserID))
	out := sideeffects.NewOutbox()
	var res Outcome
	err := l.tx.Run(ctx, func(ctx context.Context) error {
		out.Reset()
		var err error
		res, err = l.record(ctx, out, held, a)
		return err
	})
	held.Release()
	if err != nil {
		return Outcome{}, err
	}
	l.effects.Flush(ctx, out)
	return res, nil
}

// record writes one violation and its penalty using the caller's
// transaction. Notifications are added to out. The user's lock joins held;
// the caller releases held after the transaction commits, so a concurrent
// escalation of the same user counts this violation.
func (l *Ledger) record(ctx context.Context, out *sideeffects.Outbox, held *keylock.Held, a Action) (Outcome, error) {
	policy := a.Policy
	if policy.IsZero() {
		policy = l.manual
	}
	held.Lock(userLockKey(a.UserID))

	now := l.now().UTC()
	count, err := l.violations.CountSince(ctx, a.UserID, policy.Since(now))
	if err != nil {
		return Outcome{}, fmt.Errorf("count violations: %w", err)
	}
	level := models.LevelForCount(count)

	v, err := l.violations.Insert(ctx, models.Violation{
		UserID:     a.UserID,
		DocumentID: a.DocumentID,
		CreatedAt:  now,
		Level:      level,
		Kind:       a.Kind,
		Reason:     a.Reason,
		CreatedBy:  a.ActorID,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("insert violation: %w", err)
	}

	if penalty := level.Penalty(); penalty > 0 {
		rec, err := l.kpi.CurrentPeriod(ctx, a.UserID, now)
		if err != nil {
			return Outcome{}, fmt.Errorf("load kpi record: %w", err)
		}
		if rec != nil {
			if err := l.kpi.ApplyPenalty(ctx, rec.ID, penalty, now); err != nil {
				return Outcome{}, fmt.Errorf("apply kpi penalty: %w", err)
			}
		}
	}

	link := ""
	if a.DocumentID != nil {
		link = documentLink(*a.DocumentID)
	}
	out.Add(sideeffects.Notify(a.UserID,
		fmt.Sprintf("Disciplinary action: %s. Reason: %s", level.Message(), a.Reason), link))

	user, err := l.users.GetByID(ctx, a.UserID)
	switch {
	case err == nil:
		if user.ManagerID != nil {
			out.Add(sideeffects.Notify(*user.ManagerID,
				fmt.Sprintf("%s received a disciplinary action: %s. Reason: %s", displayName(user), level.Message(), a.Reason), link))
		}
	case apperr.IsNotFound(err):
		l.log.Warn("sanctioned user not in directory; manager not notified", zap.String("user_id", a.UserID.Hex()))
	default:
		return Outcome{}, fmt.Errorf("load user: %w", err)
	}

	out.Add(sideeffects.Audit(models.AuditRecord{
		DocumentID: a.DocumentID,
		Action:     audit.EventDisciplinaryAction,
		ActorID:    a.ActorID,
		Detail: map[string]string{
			"user_id": a.UserID.Hex(),
			"kind":    a.Kind,
			"level":   string(level),
			"policy":  policy.String(),
		},
	}))

	l.log.Info("violation recorded",
		zap.String("user_id", a.UserID.Hex()),
		zap.String("kind", a.Kind),
		zap.String("level", string(level)),
		zap.Int64("prior_count", count),
		zap.String("policy", policy.String()))

	return Outcome{
		Violation:      v,
		Level:          level,
		ViolationCount: count + 1,
		Message:        level.Message(),
	}, nil
}

// ResetDisciplinaryRecord prunes the user's violations older than the
// retention period and tells the user. It returns the number removed.
func (l *Ledger) ResetDisciplinaryRecord(ctx context.Context, user primitive.ObjectID, actor *primitive.ObjectID) (int64, error) {
	if user.IsZero() {
		return 0, apperr.Validation("ledger.ResetDisciplinaryRecord", "user is required", map[string]string{"user_id": "required"})
	}
	if _, err := l.users.GetByID(ctx, user); err != nil {
		return 0, err
	}
	cutoff := l.now().UTC().AddDate(-RetentionPeriod, 0, 0)
	n, err := l.violations.DeleteOlderThan(ctx, user, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune violations: %w", err)
	}

	out := sideeffects.NewOutbox()
	out.Add(
		sideeffects.Notify(user, fmt.Sprintf("Your disciplinary record was reviewed: %d violation(s) older than one year were removed.", n), ""),
		sideeffects.Audit(models.AuditRecord{
			Action:  audit.EventRecordReset,
			ActorID: actor,
			Detail:  map[string]string{"user_id": user.Hex(), "deleted": fmt.Sprint(n)},
		}),
	)
	l.effects.Flush(ctx, out)

	l.log.Info("disciplinary record pruned", zap.String("user_id", user.Hex()), zap.Int64("deleted", n))
	return n, nil
}

// Statistics aggregates violations matching c.
func (l *Ledger) Statistics(ctx context.Context, c criteria.Criteria) (ViolationStats, error) {
	rows, err := l.violations.List(ctx, c)
	if err != nil {
		return ViolationStats{}, err
	}
	st := ViolationStats{
		ByLevel: make(map[models.DisciplinaryLevel]int64, len(models.DisciplinaryLevels)),
		ByKind:  map[string]int64{},
	}
	for _, lv := range models.DisciplinaryLevels {
		st.ByLevel[lv] = 0
	}
	users := map[primitive.ObjectID]struct{}{}
	for _, v := range rows {
		st.Total++
		st.ByLevel[v.Level]++
		st.ByKind[v.Kind]++
		users[v.UserID] = struct{}{}
	}
	st.DistinctUsers = len(users)
	return st, nil
}

// UserHistory returns the user's violations oldest first. Each entry's level
// is derived from its position: the oldest is a warning, the next a
// reprimand, and so on.
func (l *Ledger) UserHistory(ctx context.Context, user primitive.ObjectID) ([]HistoryEntry, error) {
	if _, err := l.users.GetByID(ctx, user); err != nil {
		return nil, err
	}
	rows, err := l.violations.ListForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	out := make([]HistoryEntry, len(rows))
	for i, v := range rows {
		out[i] = HistoryEntry{Violation: v, Ordinal: i, Level: models.LevelForCount(int64(i))}
	}
	return out, nil
}

func userLockKey(id primitive.ObjectID) string { return "user:" + id.Hex() }

func displayName(u models.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.ID.Hex()
}
