// internal/app/features/documents/handler.go
package documents

import (
	"github.com/dalemusser/docflow/internal/app/workflow"
	"go.uber.org/zap"
)

// Handler serves the per-document endpoints: stage transitions, history,
// and the resolution lifecycle.
type Handler struct {
	Engine   *workflow.Engine
	Assigner *workflow.Assigner
	Log      *zap.Logger
}

// NewHandler constructs a documents Handler.
func NewHandler(svc *workflow.Services, logger *zap.Logger) *Handler {
	return &Handler{
		Engine:   svc.Engine,
		Assigner: svc.Assigner,
		Log:      logger,
	}
}
