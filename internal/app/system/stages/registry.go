// Package stages holds the stage registry: processing order, per-stage time
// budgets, and the terminal set.
//
// Budgets are data describing expected dwell time. A budget of 0 means the
// stage has no automatic timeout and is bounded only by the document's own
// deadline. Terminal stages never have a budget.
package stages

import (
	"fmt"
	"time"

	"github.com/dalemusser/docflow/internal/domain/models"
)

// DefaultBudgets are the stock budgets in minutes.
var DefaultBudgets = map[models.Stage]int{
	models.StagePendingRegistration: 120,
	models.StageRegistration:        120,
	models.StageResolution:          180,
	models.StageAssignment:          120,
	models.StageExecution:           0,
	models.StageDrafting:            0,
	models.StageRevisionRequested:   120,
	models.StageSignature:           120,
	models.StageDispatch:            120,
	models.StageFinalReview:         0,
}

// DefaultTerminal are the stock terminal stages.
var DefaultTerminal = []models.Stage{
	models.StageCompleted,
	models.StageRejected,
	models.StageOnHold,
	models.StageCancelled,
	models.StageArchived,
}

// Registry is an immutable stage configuration. Build one with New or
// Default and share it freely.
type Registry struct {
	order           []models.Stage
	budgets         map[models.Stage]int
	terminal        map[models.Stage]bool
	requireReviewer map[models.Stage]bool
}

// Config describes a registry. Zero-valued fields fall back to defaults.
type Config struct {
	Budgets          map[models.Stage]int
	Terminal         []models.Stage
	RequireReviewers []models.Stage
}

// Default returns the stock registry.
func Default() *Registry {
	r, err := New(Config{})
	if err != nil {
		// The stock tables are static; failing here is a programming error.
		panic(err)
	}
	return r
}

// New validates cfg and builds a Registry.
func New(cfg Config) (*Registry, error) {
	budgets := make(map[models.Stage]int, len(DefaultBudgets))
	for s, b := range DefaultBudgets {
		budgets[s] = b
	}
	for s, b := range cfg.Budgets {
		if !s.IsKnown() {
			return nil, fmt.Errorf("stages: unknown stage %q in budgets", s)
		}
		if b < 0 {
			return nil, fmt.Errorf("stages: negative budget %d for %q", b, s)
		}
		budgets[s] = b
	}

	terminalList := cfg.Terminal
	if len(terminalList) == 0 {
		terminalList = DefaultTerminal
	}
	terminal := make(map[models.Stage]bool, len(terminalList))
	for _, s := range terminalList {
		if !s.IsKnown() {
			return nil, fmt.Errorf("stages: unknown terminal stage %q", s)
		}
		terminal[s] = true
		delete(budgets, s)
	}

	requireReviewer := make(map[models.Stage]bool, len(cfg.RequireReviewers))
	for _, s := range cfg.RequireReviewers {
		if !s.IsKnown() {
			return nil, fmt.Errorf("stages: unknown stage %q in require_reviewers", s)
		}
		requireReviewer[s] = true
	}

	order := make([]models.Stage, len(models.Stages))
	copy(order, models.Stages)

	return &Registry{
		order:           order,
		budgets:         budgets,
		terminal:        terminal,
		requireReviewer: requireReviewer,
	}, nil
}

// Stages returns every stage in processing order.
func (r *Registry) Stages() []models.Stage {
	out := make([]models.Stage, len(r.order))
	copy(out, r.order)
	return out
}

// Terminal returns the terminal stages in processing order.
func (r *Registry) Terminal() []models.Stage {
	var out []models.Stage
	for _, s := range r.order {
		if r.terminal[s] {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether s ends processing.
func (r *Registry) IsTerminal(s models.Stage) bool { return r.terminal[s] }

// Known reports whether s is a configured stage.
func (r *Registry) Known(s models.Stage) bool { return s.IsKnown() }

// BudgetMinutes returns the stage budget in minutes; 0 means unbounded.
func (r *Registry) BudgetMinutes(s models.Stage) int { return r.budgets[s] }

// Budget returns the stage budget as a duration; 0 means unbounded.
func (r *Registry) Budget(s models.Stage) time.Duration {
	return time.Duration(r.budgets[s]) * time.Minute
}

// RequiresReviewers reports whether entering s needs at least one reviewer.
func (r *Registry) RequiresReviewers(s models.Stage) bool { return r.requireReviewer[s] }
