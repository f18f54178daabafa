package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the side-effect retry queue.
//
// Lifecycle: pending -> processing (claimed) -> done | pending (rescheduled)
// | failed (out of attempts).
type Store struct {
	c *mongo.Collection
}

var _ sideeffects.Queue = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("side_effect_jobs")}
}

// Enqueue stores a job. Zero timestamps default to now.
func (s *Store) Enqueue(ctx context.Context, job models.SideEffectJob) error {
	now := time.Now().UTC()
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = now
	}
	job.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, job)
	return err
}

// ClaimDue moves up to limit due pending jobs to processing and returns
// them. Each claim is a single findAndModify so concurrent workers never
// claim the same job.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.SideEffectJob, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var out []models.SideEffectJob
	for len(out) < limit {
		var job models.SideEffectJob
		err := s.c.FindOneAndUpdate(ctx,
			bson.M{"status": models.JobPending, "next_attempt_at": bson.M{"$lte": now}},
			bson.M{"$set": bson.M{"status": models.JobProcessing, "updated_at": now}},
			opts,
		).Decode(&job)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *Store) set(ctx context.Context, op string, id primitive.ObjectID, fields bson.M) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(op, "side effect job %s not found", id.Hex())
	}
	return nil
}

// Complete marks a job delivered.
func (s *Store) Complete(ctx context.Context, id primitive.ObjectID, attempts int, now time.Time) error {
	return s.set(ctx, "jobs.Complete", id, bson.M{
		"status":     models.JobDone,
		"attempts":   attempts,
		"updated_at": now,
	})
}

// Reschedule returns a job to pending for another attempt at next.
func (s *Store) Reschedule(ctx context.Context, id primitive.ObjectID, attempts int, next time.Time, lastErr string, now time.Time) error {
	return s.set(ctx, "jobs.Reschedule", id, bson.M{
		"status":          models.JobPending,
		"attempts":        attempts,
		"next_attempt_at": next,
		"last_error":      lastErr,
		"updated_at":      now,
	})
}

// Fail parks a job that ran out of attempts or cannot succeed.
func (s *Store) Fail(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string, now time.Time) error {
	return s.set(ctx, "jobs.Fail", id, bson.M{
		"status":     models.JobFailed,
		"attempts":   attempts,
		"last_error": lastErr,
		"updated_at": now,
	})
}

// RequeueStale returns processing jobs last touched before cutoff to
// pending. A worker that died mid-delivery leaves such jobs behind.
func (s *Store) RequeueStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"status": models.JobProcessing, "updated_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": models.JobPending, "next_attempt_at": now, "updated_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountByStatus returns the number of jobs per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]int64{}
	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			N      int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Status] = row.N
	}
	return out, cur.Err()
}

// GetByCorrelation returns the job with the given correlation id.
func (s *Store) GetByCorrelation(ctx context.Context, correlationID string) (models.SideEffectJob, error) {
	var job models.SideEffectJob
	if err := s.c.FindOne(ctx, bson.M{"correlation_id": correlationID}).Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.SideEffectJob{}, apperr.NotFound("jobs.GetByCorrelation", "job %s not found", correlationID)
		}
		return models.SideEffectJob{}, err
	}
	return job, nil
}
