package violationstore

import (
	"context"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var _ workflow.ViolationRepo = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("violations")}
}

var oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (s *Store) Insert(ctx context.Context, v models.Violation) (models.Violation, error) {
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, v); err != nil {
		return models.Violation{}, err
	}
	return v, nil
}

// CountSince counts the user's violations at or after since. A nil since
// counts every violation on record.
func (s *Store) CountSince(ctx context.Context, user primitive.ObjectID, since *time.Time) (int64, error) {
	filter := bson.M{"user_id": user}
	if since != nil {
		filter["created_at"] = bson.M{"$gte": *since}
	}
	return s.c.CountDocuments(ctx, filter)
}

// DeleteOlderThan removes the user's violations created before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, user primitive.ObjectID, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"user_id": user, "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Violation, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": user}, options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Violation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns violations narrowed by c. A department criteria joins the
// sanctioned user.
func (s *Store) List(ctx context.Context, c criteria.Criteria) ([]models.Violation, error) {
	match := bson.M{}
	switch c.Kind() {
	case criteria.KindDateRange:
		if tf := c.TimeFilter(); tf != nil {
			match["created_at"] = tf
		}
	case criteria.KindUser:
		user, _ := c.UserID()
		match["user_id"] = user
	case criteria.KindDepartment:
		dept, _ := c.DepartmentID()
		return s.listForDepartment(ctx, dept)
	}

	cur, err := s.c.Find(ctx, match, options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Violation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) listForDepartment(ctx context.Context, dept primitive.ObjectID) ([]models.Violation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "user_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$match", Value: bson.M{"user.department_id": dept}}},
		{{Key: "$project", Value: bson.M{"user": 0}}},
		{{Key: "$sort", Value: oldestFirst}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Violation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
