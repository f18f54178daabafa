package workflow

import (
	"errors"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/keylock"
	"github.com/dalemusser/docflow/internal/app/system/stages"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by the workflow services.
type Deps struct {
	Documents  DocumentRepo
	History    HistoryRepo
	Violations ViolationRepo
	KPI        KPIStore
	Users      UserDirectory
	Tx         TxRunner
	Effects    EffectFlusher
	Stages     *stages.Registry
	Log        *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Config tunes the services.
type Config struct {
	// DisciplineWindowMonths is the trailing window used when counting
	// violations for manual disciplinary actions.
	DisciplineWindowMonths int
	// OverdueDedupe makes the overdue scan skip documents that were already
	// escalated in their current stage.
	OverdueDedupe bool
	// DeadlineLocation decides where "today" starts for the upcoming
	// deadline scan.
	DeadlineLocation *time.Location
	// NearingThreshold is the default budget fraction for the nearing query.
	NearingThreshold float64
}

// Defaults used when Config fields are zero.
const (
	DefaultDisciplineWindowMonths = 12
	DefaultNearingThreshold       = 0.8
)

// Services bundles the four workflow components.
type Services struct {
	Engine   *Engine
	Ledger   *Ledger
	Monitor  *Monitor
	Assigner *Assigner
}

// New wires the services over deps.
func New(deps Deps, cfg Config) (*Services, error) {
	if deps.Documents == nil || deps.History == nil || deps.Violations == nil ||
		deps.KPI == nil || deps.Users == nil || deps.Tx == nil || deps.Effects == nil {
		return nil, errors.New("workflow: missing dependency")
	}
	if deps.Stages == nil {
		deps.Stages = stages.Default()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.DisciplineWindowMonths <= 0 {
		cfg.DisciplineWindowMonths = DefaultDisciplineWindowMonths
	}
	if cfg.NearingThreshold <= 0 || cfg.NearingThreshold > 1 {
		cfg.NearingThreshold = DefaultNearingThreshold
	}
	if cfg.DeadlineLocation == nil {
		cfg.DeadlineLocation = time.UTC
	}

	locks := keylock.New()
	ledger := &Ledger{
		docs:       deps.Documents,
		violations: deps.Violations,
		kpi:        deps.KPI,
		users:      deps.Users,
		tx:         deps.Tx,
		effects:    deps.Effects,
		manual:     TrailingMonths(cfg.DisciplineWindowMonths),
		locks:      locks,
		log:        deps.Log.Named("ledger"),
		now:        deps.Now,
	}
	engine := &Engine{
		docs:    deps.Documents,
		history: deps.History,
		ledger:  ledger,
		stages:  deps.Stages,
		tx:      deps.Tx,
		effects: deps.Effects,
		locks:   locks,
		log:     deps.Log.Named("engine"),
		now:     deps.Now,
	}
	monitor := &Monitor{
		docs:      deps.Documents,
		history:   deps.History,
		ledger:    ledger,
		stages:    deps.Stages,
		effects:   deps.Effects,
		dedupe:    cfg.OverdueDedupe,
		loc:       cfg.DeadlineLocation,
		threshold: cfg.NearingThreshold,
		log:       deps.Log.Named("monitor"),
		now:       deps.Now,
	}
	assigner := &Assigner{
		docs:    deps.Documents,
		engine:  engine,
		tx:      deps.Tx,
		effects: deps.Effects,
		log:     deps.Log.Named("assigner"),
		now:     deps.Now,
	}
	return &Services{Engine: engine, Ledger: ledger, Monitor: monitor, Assigner: assigner}, nil
}

// percent returns n/d as a whole percentage rounded half up, 0 when d is 0.
func percent(n, d int64) int64 {
	if d <= 0 {
		return 0
	}
	return (n*200 + d) / (2 * d)
}

// wholeMinutes floors d to whole minutes, never below zero.
func wholeMinutes(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Minute)
}

func documentLink(id interface{ Hex() string }) string {
	return "/documents/" + id.Hex()
}
