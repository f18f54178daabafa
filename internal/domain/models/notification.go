// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Message   string             `bson:"message" json:"message"`
	Link      string             `bson:"link,omitempty" json:"link,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// AuditRecord is a document-level audit entry handed to the audit sink.
type AuditRecord struct {
	DocumentID *primitive.ObjectID `bson:"document_id,omitempty" json:"document_id,omitempty"`
	Action     string              `bson:"action" json:"action"`
	ActorID    *primitive.ObjectID `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	Detail     map[string]string   `bson:"detail,omitempty" json:"detail,omitempty"`
}
