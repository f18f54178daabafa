// internal/domain/models/sideeffectjob.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Side-effect job kinds.
const (
	SideEffectNotify = "notify"
	SideEffectAudit  = "audit"
)

// Side-effect job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobDone       = "done"
	JobFailed     = "failed"
)

// SideEffectJob is a notification or audit write that failed after its
// primary mutation committed and is waiting to be retried.
type SideEffectJob struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CorrelationID string             `bson:"correlation_id" json:"correlation_id"`
	Kind          string             `bson:"kind" json:"kind"`
	Notification  *Notification      `bson:"notification,omitempty" json:"notification,omitempty"`
	Audit         *AuditRecord       `bson:"audit,omitempty" json:"audit,omitempty"`
	Status        string             `bson:"status" json:"status"`
	Attempts      int                `bson:"attempts" json:"attempts"`
	MaxAttempts   int                `bson:"max_attempts" json:"max_attempts"`
	LastError     string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
	NextAttemptAt time.Time          `bson:"next_attempt_at" json:"next_attempt_at"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
