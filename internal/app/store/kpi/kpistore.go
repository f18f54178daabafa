package kpistore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store holds monthly KPI records. Scores are computed by another system;
// this store seeds records and deducts penalties.
type Store struct {
	c *mongo.Collection
}

var _ workflow.KPIStore = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("kpi_records")}
}

// Period returns the KPI period key for the month containing t (UTC).
func Period(t time.Time) string {
	return t.UTC().Format(models.KPIPeriodLayout)
}

// CurrentPeriod returns the record for the month containing now, or nil.
func (s *Store) CurrentPeriod(ctx context.Context, user primitive.ObjectID, now time.Time) (*models.KPIRecord, error) {
	var k models.KPIRecord
	err := s.c.FindOne(ctx, bson.M{"user_id": user, "period": Period(now)}).Decode(&k)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ApplyPenalty deducts amount from the score, never below zero, and adds
// the full amount to penalty_total in a single update.
func (s *Store) ApplyPenalty(ctx context.Context, recordID primitive.ObjectID, amount float64, now time.Time) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"score": bson.M{"$max": bson.A{
				0,
				bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$score", 0}}, amount}},
			}},
			"penalty_total": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$penalty_total", 0}}, amount}},
			"updated_at":    now,
		}}},
	}
	res, err := s.c.UpdateByID(ctx, recordID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("kpi.ApplyPenalty", "kpi record %s not found", recordID.Hex())
	}
	return nil
}

// Upsert sets the score for user in the month containing at, creating the
// record when missing. The accumulated penalty is left untouched.
func (s *Store) Upsert(ctx context.Context, user primitive.ObjectID, at time.Time, score float64) (models.KPIRecord, error) {
	var out models.KPIRecord
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"user_id": user, "period": Period(at)},
		bson.M{
			"$set":         bson.M{"score": score, "updated_at": time.Now().UTC()},
			"$setOnInsert": bson.M{"penalty_total": 0.0},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return models.KPIRecord{}, err
	}
	return out, nil
}
