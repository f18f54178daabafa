// internal/app/features/deadlines/handler.go
package deadlines

import (
	"net/http"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.uber.org/zap"
)

// Handler exposes the deadline monitor: manual scan triggers and the stage
// queries.
type Handler struct {
	Monitor *workflow.Monitor
	Log     *zap.Logger
}

// NewHandler constructs a deadlines Handler.
func NewHandler(svc *workflow.Services, logger *zap.Logger) *Handler {
	return &Handler{Monitor: svc.Monitor, Log: logger}
}

// HandleOverdueScan handles POST /api/deadlines/overdue-scan.
func (h *Handler) HandleOverdueScan(w http.ResponseWriter, r *http.Request) {
	const op = "deadlines.overdueScan"
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Scan(), h.Log, op)
	defer cancel()

	violations, err := h.Monitor.CheckOverdueDocuments(ctx)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if violations == nil {
		violations = []models.Violation{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"count": len(violations), "violations": violations})
}

// HandleUpcomingScan handles POST /api/deadlines/upcoming-scan.
func (h *Handler) HandleUpcomingScan(w http.ResponseWriter, r *http.Request) {
	const op = "deadlines.upcomingScan"
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Scan(), h.Log, op)
	defer cancel()

	sent, err := h.Monitor.CheckUpcomingDeadlines(ctx)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if sent == nil {
		sent = []models.Notification{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"count": len(sent), "notifications": sent})
}

// ServeStuck handles GET /api/deadlines/stuck?stage=...
func (h *Handler) ServeStuck(w http.ResponseWriter, r *http.Request) {
	const op = "deadlines.stuck"
	stage, err := shared.ParseStage(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	docs, err := h.Monitor.StuckDocuments(ctx, stage)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if docs == nil {
		docs = []workflow.StuckDocument{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"stage": stage, "documents": docs})
}

// ServeNearing handles GET /api/deadlines/nearing?stage=...[&threshold=0.8].
func (h *Handler) ServeNearing(w http.ResponseWriter, r *http.Request) {
	const op = "deadlines.nearing"
	stage, err := shared.ParseStage(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	threshold, err := shared.ParseFloat(r, op, "threshold")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	docs, err := h.Monitor.DocumentsNearingDeadline(ctx, stage, threshold)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if docs == nil {
		docs = []workflow.NearingDocument{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"stage": stage, "documents": docs})
}

// ServeStageStats handles GET /api/deadlines/stage-stats.
func (h *Handler) ServeStageStats(w http.ResponseWriter, r *http.Request) {
	const op = "deadlines.stageStats"
	c, err := shared.ParseCriteria(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	stats, err := h.Monitor.StageStatistics(ctx, c)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if stats == nil {
		stats = []workflow.StageStats{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"stages": stats})
}
