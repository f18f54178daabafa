// internal/app/features/discipline/handler.go
package discipline

import (
	"net/http"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/app/system/inputval"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler exposes the escalation ledger.
type Handler struct {
	Ledger *workflow.Ledger
	Log    *zap.Logger
}

// NewHandler constructs a discipline Handler.
func NewHandler(svc *workflow.Services, logger *zap.Logger) *Handler {
	return &Handler{Ledger: svc.Ledger, Log: logger}
}

// HandleAction handles POST /api/discipline/actions. Manual actions count
// violations over the configured trailing window.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	const op = "discipline.action"
	var req inputval.DisciplinaryActionRequest
	if err := inputval.Decode(op, r, &req); err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	_, _, actor, _ := authz.UserCtx(r)
	user, _ := primitive.ObjectIDFromHex(req.UserID)
	if user == actor {
		uierrors.RenderForbidden(w, "cannot sanction yourself")
		return
	}
	action := workflow.Action{
		UserID:  user,
		Kind:    req.Kind,
		Reason:  req.Reason,
		ActorID: &actor,
	}
	if action.Kind == "" {
		action.Kind = models.ViolationManual
	}
	if req.DocumentID != "" {
		doc, _ := primitive.ObjectIDFromHex(req.DocumentID)
		action.DocumentID = &doc
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	outcome, err := h.Ledger.ApplyDisciplinaryAction(ctx, action)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, outcome)
}

// HandleReset handles DELETE /api/discipline/users/{id}/record.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	const op = "discipline.reset"
	user, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	_, _, actor, _ := authz.UserCtx(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	n, err := h.Ledger.ResetDisciplinaryRecord(ctx, user, &actor)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"user_id": user, "deleted": n})
}

// ServeUserHistory handles GET /api/discipline/users/{id}/history.
func (h *Handler) ServeUserHistory(w http.ResponseWriter, r *http.Request) {
	const op = "discipline.userHistory"
	user, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if !authz.CanViewUser(r, user) {
		uierrors.RenderForbidden(w, "cannot view another user's record")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, op)
	defer cancel()

	entries, err := h.Ledger.UserHistory(ctx, user)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	count, err := h.Ledger.ViolationCount(ctx, user, h.Ledger.ManualPolicy())
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":       user,
		"history":       entries,
		"window_count":  count,
		"window_policy": h.Ledger.ManualPolicy().String(),
		"next_level":    models.LevelForCount(count),
	})
}

// ServeStats handles GET /api/discipline/stats.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	const op = "discipline.stats"
	c, err := shared.ParseCriteria(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	st, err := h.Ledger.Statistics(ctx, c)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, st)
}
