package workflow_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/app/system/stages"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil/memstore"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	store *memstore.Store
	svc   *workflow.Services
	clock *clock
}

type option func(*workflow.Deps, *workflow.Config)

func withConfig(fn func(*workflow.Config)) option {
	return func(_ *workflow.Deps, c *workflow.Config) { fn(c) }
}

func withStages(reg *stages.Registry) option {
	return func(d *workflow.Deps, _ *workflow.Config) { d.Stages = reg }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	st := memstore.New()
	clk := &clock{now: t0}
	disp := sideeffects.NewDispatcher(st.Notifier(), st.Auditor(), st.Queue(), zap.NewNop(), 5)

	deps := workflow.Deps{
		Documents:  st.Documents(),
		History:    st.History(),
		Violations: st.Violations(),
		KPI:        st.KPI(),
		Users:      st.Users(),
		Tx:         st,
		Effects:    disp,
		Stages:     stages.Default(),
		Log:        zap.NewNop(),
		Now:        clk.Now,
	}
	cfg := workflow.Config{}
	for _, o := range opts {
		o(&deps, &cfg)
	}
	svc, err := workflow.New(deps, cfg)
	require.NoError(t, err)
	return &fixture{store: st, svc: svc, clock: clk}
}

func (f *fixture) user(name string) models.User {
	return f.store.AddUser(models.User{FullName: name, Role: "executor"})
}

func (f *fixture) userWithManager(name string, manager primitive.ObjectID) models.User {
	return f.store.AddUser(models.User{FullName: name, Role: "executor", ManagerID: &manager})
}

func (f *fixture) document(reg string) models.Document {
	return f.store.AddDocument(models.Document{
		RegNumber: reg,
		Title:     "Letter " + reg,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	})
}

func ptr[T any](v T) *T { return &v }
