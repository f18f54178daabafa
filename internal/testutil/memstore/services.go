package memstore

import (
	"time"

	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/app/system/stages"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"go.uber.org/zap"
)

// Services wires the workflow over s with the default stage table. A nil
// now uses time.Now.
func (s *Store) Services(now func() time.Time, cfg workflow.Config) (*workflow.Services, error) {
	disp := sideeffects.NewDispatcher(s.Notifier(), s.Auditor(), s.Queue(), zap.NewNop(), sideeffects.DefaultMaxAttempts)
	return workflow.New(workflow.Deps{
		Documents:  s.Documents(),
		History:    s.History(),
		Violations: s.Violations(),
		KPI:        s.KPI(),
		Users:      s.Users(),
		Tx:         s,
		Effects:    disp,
		Stages:     stages.Default(),
		Now:        now,
	}, cfg)
}
