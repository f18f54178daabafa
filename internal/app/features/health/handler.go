// internal/app/features/health/handler.go
package health

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// JobCounter reports side-effect retry jobs by status.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Jobs   JobCounter
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. jobs may be nil.
func NewHandler(client *mongo.Client, jobs JobCounter, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Jobs:   jobs,
		Log:    logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string           `json:"status"`
	Database string           `json:"database"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
	Jobs     map[string]int64 `json:"side_effect_jobs,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "side_effect_jobs":{"pending":2,"failed":0} }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		uierrors.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	// Queue depth is informational; a failed count does not fail the check.
	if h.Jobs != nil {
		counts, err := h.Jobs.CountByStatus(ctx)
		if err != nil {
			h.Log.Warn("health-check: job count failed", zap.Error(err))
		} else {
			resp.Jobs = counts
		}
	}

	uierrors.WriteJSON(w, http.StatusOK, resp)
}
