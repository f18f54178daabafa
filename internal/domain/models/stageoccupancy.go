// internal/domain/models/stageoccupancy.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StageOccupancy is one stay of a document in a stage (a stage_history row).
//
// Open is true while ExitedAt is nil. A unique partial index on
// {document_id} where open == true keeps at most one open row per document.
type StageOccupancy struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DocumentID      primitive.ObjectID  `bson:"document_id" json:"document_id"`
	Stage           Stage               `bson:"stage" json:"stage"`
	EnteredAt       time.Time           `bson:"entered_at" json:"entered_at"`
	ExitedAt        *time.Time          `bson:"exited_at,omitempty" json:"exited_at,omitempty"`
	DurationMinutes *int64              `bson:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	PerformedBy     *primitive.ObjectID `bson:"performed_by,omitempty" json:"performed_by,omitempty"`
	Notes           string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Open            bool                `bson:"open" json:"open"`
}
