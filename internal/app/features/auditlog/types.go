// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/docflow/internal/app/store/audit"
)

// listItem is one audit event with actor and target names resolved.
type listItem struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Category   string            `json:"category"`
	EventType  string            `json:"event_type"`
	DocumentID string            `json:"document_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorName  string            `json:"actor_name,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	UserName   string            `json:"user_name,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// listResponse is one page of the audit trail.
type listResponse struct {
	Items      []listItem `json:"items"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Total      int64      `json:"total"`
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	documentEvents := []string{
		audit.EventStageTransition,
		audit.EventResolutionCreated,
		audit.EventExecutorReassigned,
		audit.EventResolutionComment,
		audit.EventResolutionCompleted,
	}
	disciplineEvents := []string{
		audit.EventDisciplinaryAction,
		audit.EventRecordReset,
	}

	switch category {
	case audit.CategoryDocument:
		return documentEvents
	case audit.CategoryDiscipline:
		return disciplineEvents
	case "":
		all := make([]string, 0, len(documentEvents)+len(disciplineEvents))
		all = append(all, documentEvents...)
		all = append(all, disciplineEvents...)
		return all
	default:
		return nil
	}
}

func knownEventType(category, eventType string) bool {
	for _, et := range eventTypesForCategory(category) {
		if et == eventType {
			return true
		}
	}
	return false
}
