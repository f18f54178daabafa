// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"net/http"
	"strconv"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/app/system/normalize"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Listing limits.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Inbox is the slice of the notification store the handlers use.
type Inbox interface {
	ListForUser(ctx context.Context, user primitive.ObjectID, unreadOnly bool, limit int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, user, id primitive.ObjectID) error
	CountUnread(ctx context.Context, user primitive.ObjectID) (int64, error)
}

// Handler serves the caller's own notification inbox.
type Handler struct {
	Inbox Inbox
	Log   *zap.Logger
}

// NewHandler constructs a notifications Handler.
func NewHandler(inbox Inbox, logger *zap.Logger) *Handler {
	return &Handler{Inbox: inbox, Log: logger}
}

type listResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

// ServeList handles GET /api/notifications?unread=true&limit=50.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	const op = "notifications.list"
	_, _, user, _ := authz.UserCtx(r)

	limit, err := parseLimit(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	unreadOnly, _ := strconv.ParseBool(normalize.QueryParam(query.Get(r, "unread")))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, op)
	defer cancel()

	rows, err := h.Inbox.ListForUser(ctx, user, unreadOnly, limit)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	unread, err := h.Inbox.CountUnread(ctx, user)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	uierrors.WriteJSON(w, http.StatusOK, listResponse{Notifications: rows, Unread: unread})
}

// HandleMarkRead handles POST /api/notifications/{id}/read. Another user's
// notification answers 404.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	const op = "notifications.markRead"
	_, _, user, _ := authz.UserCtx(r)

	id, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, op)
	defer cancel()

	if err := h.Inbox.MarkRead(ctx, user, id); err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request, op string) (int64, error) {
	raw := normalize.QueryParam(query.Get(r, "limit"))
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 || n > MaxLimit {
		return 0, apperr.Validation(op, "invalid limit", map[string]string{"limit": "must be between 1 and " + strconv.Itoa(MaxLimit)})
	}
	return n, nil
}
