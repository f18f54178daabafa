package historystore

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

// Collection is the stage_history collection name.
const Collection = "stage_history"

// Store persists stage occupancy rows. The uniq_open_occupancy partial
// index guarantees at most one open row per document.
type Store struct {
	c *mongo.Collection
}

var _ workflow.HistoryRepo = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// OpenFor returns the document's open row, or nil when it has none.
func (s *Store) OpenFor(ctx context.Context, documentID primitive.ObjectID) (*models.StageOccupancy, error) {
	var o models.StageOccupancy
	err := s.c.FindOne(ctx, bson.M{"document_id": documentID, "open": true}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Close stamps the exit time and duration on an open row.
func (s *Store) Close(ctx context.Context, id primitive.ObjectID, exitedAt time.Time, durationMinutes int64) error {
	const op = "stagehistory.Close"
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "open": true},
		bson.M{"$set": bson.M{
			"exited_at":        exitedAt,
			"duration_minutes": durationMinutes,
			"open":             false,
		}})
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
		return apperr.NotFound(op, "stage history row %s not found", id.Hex())
	}
	return apperr.Invariant(op, "stage history row %s is already closed", id.Hex())
}

// Open inserts a new open row.
func (s *Store) Open(ctx context.Context, occ models.StageOccupancy) (models.StageOccupancy, error) {
	if occ.ID.IsZero() {
		occ.ID = primitive.NewObjectID()
	}
	occ.Open = true
	occ.ExitedAt = nil
	occ.DurationMinutes = nil
	if _, err := s.c.InsertOne(ctx, occ); err != nil {
		if wafflemongo.IsDup(err) {
			return models.StageOccupancy{}, apperr.Invariant("stagehistory.Open",
				"document %s already has an open stage", occ.DocumentID.Hex())
		}
		return models.StageOccupancy{}, err
	}
	return occ, nil
}

func (s *Store) find(ctx context.Context, filter any) ([]models.StageOccupancy, error) {
	opts := options.Find().SetSort(bson.D{{Key: "entered_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StageOccupancy
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListForDocument returns a document's rows in entry order.
func (s *Store) ListForDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.StageOccupancy, error) {
	return s.find(ctx, bson.M{"document_id": documentID})
}

// ListOpenEnteredBefore returns open rows in stage entered before cutoff.
func (s *Store) ListOpenEnteredBefore(ctx context.Context, stage models.Stage, cutoff time.Time) ([]models.StageOccupancy, error) {
	return s.find(ctx, bson.M{
		"stage":      stage,
		"open":       true,
		"entered_at": bson.M{"$lt": cutoff},
	})
}

// ListEntered returns rows narrowed by c. A department criteria joins the
// owning document.
func (s *Store) ListEntered(ctx context.Context, c criteria.Criteria) ([]models.StageOccupancy, error) {
	switch c.Kind() {
	case criteria.KindDateRange:
		if tf := c.TimeFilter(); tf != nil {
			return s.find(ctx, bson.M{"entered_at": tf})
		}
	case criteria.KindUser:
		user, _ := c.UserID()
		return s.find(ctx, bson.M{"performed_by": user})
	case criteria.KindDepartment:
		dept, _ := c.DepartmentID()
		return s.listForDepartment(ctx, dept)
	}
	return s.find(ctx, bson.M{})
}

func (s *Store) listForDepartment(ctx context.Context, dept primitive.ObjectID) ([]models.StageOccupancy, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         "documents",
			"localField":   "document_id",
			"foreignField": "_id",
			"as":           "doc",
		}}},
		{{Key: "$match", Value: bson.M{"doc.department_id": dept}}},
		{{Key: "$project", Value: bson.M{"doc": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "entered_at", Value: 1}, {Key: "_id", Value: 1}}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StageOccupancy
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
