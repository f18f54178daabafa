// internal/domain/models/kpi.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KPIPeriodLayout formats a KPI period key (one record per user per month).
const KPIPeriodLayout = "2006-01"

// KPIRecord is a user's monthly KPI score. This service only ever deducts
// penalties from it; scoring itself happens elsewhere.
type KPIRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Period       string             `bson:"period" json:"period"`
	Score        float64            `bson:"score" json:"score"`
	PenaltyTotal float64            `bson:"penalty_total" json:"penalty_total"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}
