// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Events is the slice of the audit store the list handler reads.
type Events interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// Users resolves actor and target names. Lookups that fail leave the raw id.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

type Handler struct {
	Events Events
	Users  Users
	Log    *zap.Logger
}

// NewHandler constructs an audit trail handler over the audit store and
// user directory.
func NewHandler(events Events, users Users, logger *zap.Logger) *Handler {
	return &Handler{
		Events: events,
		Users:  users,
		Log:    logger,
	}
}
