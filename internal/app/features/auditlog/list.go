// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strconv"
	"strings"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const pageSize = 50

// ServeList handles GET /api/audit with optional category, event_type,
// document_id, user_id, from, to and page filters.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	const op = "audit.list"

	filter, page, err := parseFilter(r, op)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	// Resolve each distinct user once.
	names := make(map[primitive.ObjectID]string)
	resolve := func(id *primitive.ObjectID) (string, string) {
		if id == nil {
			return "", ""
		}
		if name, ok := names[*id]; ok {
			return id.Hex(), name
		}
		name := ""
		if u, err := h.Users.GetByID(ctx, *id); err == nil {
			name = u.FullName
		} else if !apperr.IsNotFound(err) {
			h.Log.Warn("failed to resolve user for audit log", zap.String("user_id", id.Hex()), zap.Error(err))
		}
		names[*id] = name
		return id.Hex(), name
	}

	items := make([]listItem, 0, len(events))
	for _, e := range events {
		item := listItem{
			ID:        e.ID.Hex(),
			Timestamp: e.Timestamp,
			Category:  e.Category,
			EventType: e.EventType,
			Details:   e.Details,
		}
		if e.DocumentID != nil {
			item.DocumentID = e.DocumentID.Hex()
		}
		item.ActorID, item.ActorName = resolve(e.ActorID)
		item.UserID, item.UserName = resolve(e.UserID)
		items = append(items, item)
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}

	uierrors.WriteJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	})
}

func parseFilter(r *http.Request, op string) (audit.QueryFilter, int, error) {
	category := strings.ToLower(strings.TrimSpace(query.Get(r, "category")))
	eventType := strings.ToLower(strings.TrimSpace(query.Get(r, "event_type")))

	if category != "" && eventTypesForCategory(category) == nil {
		return audit.QueryFilter{}, 0, apperr.Validation(op, "unknown category", map[string]string{"category": "must be document or discipline"})
	}
	if eventType != "" && !knownEventType(category, eventType) {
		return audit.QueryFilter{}, 0, apperr.Validation(op, "unknown event type", map[string]string{"event_type": "not an event of this category"})
	}

	page := 1
	if raw := strings.TrimSpace(query.Get(r, "page")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return audit.QueryFilter{}, 0, apperr.Validation(op, "invalid page", map[string]string{"page": "must be a positive integer"})
		}
		page = p
	}

	documentID, err := shared.OptionalID(r, op, "document_id")
	if err != nil {
		return audit.QueryFilter{}, 0, err
	}
	userID, err := shared.OptionalID(r, op, "user_id")
	if err != nil {
		return audit.QueryFilter{}, 0, err
	}
	from, to, err := shared.ParseRange(r, op)
	if err != nil {
		return audit.QueryFilter{}, 0, err
	}

	return audit.QueryFilter{
		DocumentID: documentID,
		UserID:     userID,
		Category:   category,
		EventType:  eventType,
		StartTime:  from,
		EndTime:    to,
		Limit:      pageSize,
		Offset:     int64((page - 1) * pageSize),
	}, page, nil
}
