package documentstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateRegNumber is returned when a registration number is taken.
var ErrDuplicateRegNumber = errors.New("a document with this registration number already exists")

type Store struct {
	c *mongo.Collection
}

var _ workflow.DocumentRepo = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("documents")}
}

// Create inserts a document as handed over by intake. Stage history starts
// with the first transition.
func (s *Store) Create(ctx context.Context, d models.Document) (models.Document, error) {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if d.Status == "" {
		d.Status = models.DocumentStatusNew
	}
	if d.Stage == "" {
		d.Stage = models.StagePendingRegistration
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, d); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Document{}, ErrDuplicateRegNumber
		}
		return models.Document{}, err
	}
	return d, nil
}

// GetByID loads a document by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Document, error) {
	var d models.Document
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Document{}, apperr.NotFound("documents.GetByID", "document %s not found", id.Hex())
		}
		return models.Document{}, err
	}
	return d, nil
}

// SetStage writes the stage only if nobody moved the document since it was
// read, and bumps stage_version.
func (s *Store) SetStage(ctx context.Context, id primitive.ObjectID, stage models.Stage, expectedVersion int64, now time.Time) error {
	const op = "documents.SetStage"
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "stage_version": expectedVersion},
		bson.M{
			"$set": bson.M{"stage": stage, "updated_at": now},
			"$inc": bson.M{"stage_version": 1},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(op, "document %s not found", id.Hex())
	}
	return apperr.Conflict(op, "document %s was moved by someone else, reload and retry", id.Hex())
}

func (s *Store) updateByID(ctx context.Context, op string, id primitive.ObjectID, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(op, "document %s not found", id.Hex())
	}
	return nil
}

// ApplyResolution writes a resolution's assignment fields. Stage is left
// alone.
func (s *Store) ApplyResolution(ctx context.Context, id primitive.ObjectID, upd workflow.ResolutionUpdate) error {
	set := bson.M{
		"resolution_text":  upd.Text,
		"resolution_notes": upd.Notes,
		"priority":         upd.Priority,
		"co_executor_ids":  nonNilIDs(upd.CoExecutorIDs),
		"reviewers":        nonNilReviewers(upd.Reviewers),
		"contributors":     nonNilContributors(upd.Contributors),
		"resolved_by_id":   upd.ResolvedByID,
		"resolved_at":      upd.ResolvedAt,
		"status":           upd.Status,
		"updated_at":       upd.ResolvedAt,
	}
	unset := bson.M{}
	if upd.Deadline != nil {
		set["deadline"] = *upd.Deadline
	} else {
		unset["deadline"] = ""
	}
	if upd.PrimaryExecutorID != nil {
		set["primary_executor_id"] = *upd.PrimaryExecutorID
	} else {
		unset["primary_executor_id"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return s.updateByID(ctx, "documents.ApplyResolution", id, update)
}

// SetPrimaryExecutor replaces the primary executor.
func (s *Store) SetPrimaryExecutor(ctx context.Context, id, executor primitive.ObjectID, now time.Time) error {
	return s.updateByID(ctx, "documents.SetPrimaryExecutor", id, bson.M{
		"$set": bson.M{"primary_executor_id": executor, "updated_at": now},
	})
}

// MarkCompleted sets status done and stores completion notes.
func (s *Store) MarkCompleted(ctx context.Context, id primitive.ObjectID, notes string, now time.Time) error {
	return s.updateByID(ctx, "documents.MarkCompleted", id, bson.M{
		"$set": bson.M{
			"status":           models.DocumentStatusDone,
			"completion_notes": notes,
			"completed_at":     now,
			"updated_at":       now,
		},
	})
}

// SetEscalationMarker records the last overdue escalation.
func (s *Store) SetEscalationMarker(ctx context.Context, id primitive.ObjectID, marker models.EscalationMarker) error {
	return s.updateByID(ctx, "documents.SetEscalationMarker", id, bson.M{
		"$set": bson.M{"overdue_escalation": marker},
	})
}

func (s *Store) find(ctx context.Context, filter bson.M, sort bson.D) ([]models.Document, error) {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Document
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var byDeadline = bson.D{{Key: "deadline", Value: 1}, {Key: "_id", Value: 1}}

// ListOverdue returns documents past their deadline, outside terminal stages,
// with a primary executor.
func (s *Store) ListOverdue(ctx context.Context, now time.Time, terminal []models.Stage) ([]models.Document, error) {
	return s.find(ctx, bson.M{
		"deadline":            bson.M{"$lt": now},
		"stage":               bson.M{"$nin": terminal},
		"primary_executor_id": bson.M{"$ne": nil},
	}, byDeadline)
}

// ListDueBetween returns non-terminal documents due in [from, to].
func (s *Store) ListDueBetween(ctx context.Context, from, to time.Time, terminal []models.Stage) ([]models.Document, error) {
	return s.find(ctx, bson.M{
		"deadline": bson.M{"$gte": from, "$lte": to},
		"stage":    bson.M{"$nin": terminal},
	}, byDeadline)
}

// executorFilter matches documents where user is primary, equal or
// co-executor.
func executorFilter(user primitive.ObjectID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"primary_executor_id": user},
		bson.M{"co_executor_ids": user},
		bson.M{"reviewers": bson.M{"$elemMatch": bson.M{"user_id": user, "role": models.RoleEqualExecutor}}},
	}}
}

// ListAssigned returns documents with a primary executor narrowed by c.
func (s *Store) ListAssigned(ctx context.Context, c criteria.Criteria) ([]models.Document, error) {
	filter := bson.M{"primary_executor_id": bson.M{"$ne": nil}}
	switch c.Kind() {
	case criteria.KindDateRange:
		if tf := c.TimeFilter(); tf != nil {
			filter["created_at"] = tf
		}
	case criteria.KindDepartment:
		dept, _ := c.DepartmentID()
		filter["department_id"] = dept
	case criteria.KindUser:
		user, _ := c.UserID()
		filter = bson.M{"$and": bson.A{filter, executorFilter(user)}}
	}
	return s.find(ctx, filter, bson.D{{Key: "_id", Value: 1}})
}

// ListByRole returns the documents where user holds role.
func (s *Store) ListByRole(ctx context.Context, user primitive.ObjectID, role models.ExecutorRole) ([]models.Document, error) {
	var filter bson.M
	sort := bson.D{{Key: "_id", Value: 1}}
	switch role {
	case models.ExecutorPrimary:
		filter = bson.M{"primary_executor_id": user}
		sort = byDeadline
	case models.ExecutorEqual:
		filter = bson.M{"reviewers": bson.M{"$elemMatch": bson.M{"user_id": user, "role": models.RoleEqualExecutor}}}
	case models.ExecutorCo:
		filter = bson.M{"co_executor_ids": user}
	case models.ExecutorAssistant:
		filter = bson.M{"contributors": bson.M{"$elemMatch": bson.M{"user_id": user, "role": models.RoleAssistant}}}
	default:
		return nil, apperr.Validation("documents.ListByRole", "unknown role", map[string]string{"role": string(role)})
	}
	return s.find(ctx, filter, sort)
}

func nonNilIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return ids
}

func nonNilReviewers(rs []models.Reviewer) []models.Reviewer {
	if rs == nil {
		return []models.Reviewer{}
	}
	return rs
}

func nonNilContributors(cs []models.Contributor) []models.Contributor {
	if cs == nil {
		return []models.Contributor{}
	}
	return cs
}
