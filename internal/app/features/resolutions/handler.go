// internal/app/features/resolutions/handler.go
package resolutions

import (
	"net/http"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/app/system/inputval"
	"github.com/dalemusser/docflow/internal/app/system/normalize"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.uber.org/zap"
)

// Handler serves resolution reports.
type Handler struct {
	Assigner *workflow.Assigner
	Log      *zap.Logger
}

// NewHandler constructs a resolutions Handler.
func NewHandler(svc *workflow.Services, logger *zap.Logger) *Handler {
	return &Handler{Assigner: svc.Assigner, Log: logger}
}

// ServeStats handles GET /api/resolutions/stats.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	const op = "resolutions.stats"
	c, err := shared.ParseCriteria(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	st, err := h.Assigner.ResolutionStatistics(ctx, c)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, st)
}

// ServeByRole handles GET /api/resolutions/by-role?role=primary[&user_id=...].
// Without user_id it lists the caller's own documents; looking at someone
// else's needs a report role.
func (h *Handler) ServeByRole(w http.ResponseWriter, r *http.Request) {
	const op = "resolutions.byRole"
	_, _, user, _ := authz.UserCtx(r)
	if raw := normalize.QueryParam(query.Get(r, "user_id")); raw != "" {
		id, err := inputval.ObjectID(op, "user_id", raw)
		if err != nil {
			uierrors.WriteError(w, r, h.Log, err)
			return
		}
		if !authz.CanViewUser(r, id) {
			uierrors.RenderForbidden(w, "cannot list another user's documents")
			return
		}
		user = id
	}
	role := models.ExecutorRole(normalize.Role(query.Get(r, "role")))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	docs, err := h.Assigner.DocumentsByRole(ctx, user, role)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"user_id": user, "role": role, "documents": docs})
}
