package userstore

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/normalize"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store reads the users collection. Users are mastered by the directory
// service; Create and SetManager exist for seeding and sync.
type Store struct {
	c *mongo.Collection
}

var _ workflow.UserDirectory = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, apperr.NotFound("users.GetByID", "user %s not found", id.Hex())
		}
		return models.User{}, err
	}
	return u, nil
}

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	errBadRole        = errors.New(`role must be "admin"|"chancellery"|"manager"|"executor"`)
	errBadStatus      = errors.New(`status must be "active"|"disabled"`)
)

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.FullName = normalize.Name(u.FullName)
	u.Email = normalize.Email(u.Email)
	u.Role = normalize.Role(u.Role)
	u.Status = normalize.Status(u.Status)
	if u.Status == "" {
		u.Status = models.UserActive
	}

	if !slices.Contains(models.UserRoles, u.Role) {
		return models.User{}, errBadRole
	}
	if u.Status != models.UserActive && u.Status != models.UserDisabled {
		return models.User{}, errBadStatus
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// SetManager points a user at their manager. A nil manager clears it.
func (s *Store) SetManager(ctx context.Context, id primitive.ObjectID, manager *primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if manager != nil {
		update["$set"].(bson.M)["manager_id"] = *manager
	} else {
		update["$unset"] = bson.M{"manager_id": ""}
	}
	res, err := s.c.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("users.SetManager", "user %s not found", id.Hex())
	}
	return nil
}

// ListByDepartment returns active users in dept sorted by name.
func (s *Store) ListByDepartment(ctx context.Context, dept primitive.ObjectID) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"department_id": dept, "status": models.UserActive}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
