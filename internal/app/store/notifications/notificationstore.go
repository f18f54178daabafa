package notificationstore

import (
	"context"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the in-app notification inbox.
type Store struct {
	c *mongo.Collection
}

var _ sideeffects.Notifier = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Notify stores a notification for its user.
func (s *Store) Notify(ctx context.Context, n models.Notification) error {
	if n.UserID.IsZero() {
		return apperr.Validation("notifications.Notify", "notification has no recipient", map[string]string{"user_id": "required"})
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, n)
	return err
}

// ListForUser returns a user's notifications, newest first. limit <= 0
// means 50.
func (s *Store) ListForUser(ctx context.Context, user primitive.ObjectID, unreadOnly bool, limit int64) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"user_id": user}
	if unreadOnly {
		filter["read"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks one of the user's notifications read.
func (s *Store) MarkRead(ctx context.Context, user, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "user_id": user}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("notifications.MarkRead", "notification %s not found", id.Hex())
	}
	return nil
}

// CountUnread counts the user's unread notifications.
func (s *Store) CountUnread(ctx context.Context, user primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": user, "read": false})
}

// DeleteBefore removes read notifications created before cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"read": true, "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
