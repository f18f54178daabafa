// internal/domain/models/violation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Violation kinds.
const (
	ViolationStageOverrun = "stage_overrun"
	ViolationDeadline     = "deadline_overdue"
	ViolationManual       = "manual"
)

// ViolationKinds lists every kind a violation may carry.
var ViolationKinds = []string{ViolationStageOverrun, ViolationDeadline, ViolationManual}

// IsViolationKind reports whether k is one of ViolationKinds.
func IsViolationKind(k string) bool {
	for _, v := range ViolationKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Violation is a disciplinary record against a user.
type Violation struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID  `bson:"user_id" json:"user_id"`
	DocumentID *primitive.ObjectID `bson:"document_id,omitempty" json:"document_id,omitempty"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
	Level      DisciplinaryLevel   `bson:"level" json:"level"`
	Kind       string              `bson:"kind" json:"kind"`
	Reason     string              `bson:"reason" json:"reason"`
	CreatedBy  *primitive.ObjectID `bson:"created_by,omitempty" json:"created_by,omitempty"`
}
