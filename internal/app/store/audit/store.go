// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryDocument   = "document"
	CategoryDiscipline = "discipline"
)

// Document event types
const (
	EventStageTransition     = "stage_transition"
	EventResolutionCreated   = "resolution_created"
	EventExecutorReassigned  = "executor_reassigned"
	EventResolutionComment   = "resolution_comment"
	EventResolutionCompleted = "resolution_completed"
)

// Discipline event types
const (
	EventDisciplinaryAction = "disciplinary_action"
	EventRecordReset        = "disciplinary_record_reset"
)

// CategoryFor returns the category an event type belongs to.
func CategoryFor(eventType string) string {
	switch eventType {
	case EventDisciplinaryAction, EventRecordReset:
		return CategoryDiscipline
	}
	return CategoryDocument
}

// Event represents an audit event.
type Event struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty"`
	Timestamp  time.Time           `bson:"timestamp"`
	DocumentID *primitive.ObjectID `bson:"document_id,omitempty"`

	// Event classification
	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who
	UserID  *primitive.ObjectID `bson:"user_id,omitempty"`  // affected user
	ActorID *primitive.ObjectID `bson:"actor_id,omitempty"` // who performed the action

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	DocumentID *primitive.ObjectID
	UserID     *primitive.ObjectID
	Category   string
	EventType  string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int64
	Offset     int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func buildQuery(filter QueryFilter) bson.M {
	query := bson.M{}
	if filter.DocumentID != nil {
		query["document_id"] = filter.DocumentID
	}
	if filter.UserID != nil {
		query["user_id"] = filter.UserID
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.EventType != "" {
		query["event_type"] = filter.EventType
	}
	if filter.StartTime != nil || filter.EndTime != nil {
		timeQuery := bson.M{}
		if filter.StartTime != nil {
			timeQuery["$gte"] = *filter.StartTime
		}
		if filter.EndTime != nil {
			timeQuery["$lte"] = *filter.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, buildQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, buildQuery(filter))
}

// GetByDocument retrieves recent audit events for a document.
func (s *Store) GetByDocument(ctx context.Context, documentID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{DocumentID: &documentID, Limit: limit})
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{Limit: limit})
}

// GetByUser retrieves recent audit events affecting a user.
func (s *Store) GetByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{UserID: &userID, Limit: limit})
}
