// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/docflow/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("documents", documentsSchema())
	ensure("stage_history", stageHistorySchema())
	ensure("violations", violationsSchema())
	ensure("kpi_records", kpiSchema())
	ensure("side_effect_jobs", jobsSchema())
	ensure("users", usersSchema())

	// No validator; the collections still have to exist before a
	// transaction writes to them.
	ensure("notifications", nil)
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func enum[T ~string](values []T) bson.A {
	out := make(bson.A, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

var objectIDOrNull = bson.M{"bsonType": bson.A{"objectId", "null"}}

func documentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"stage", "status", "created_at"},
			"properties": bson.M{
				"stage":               bson.M{"enum": enum(models.Stages)},
				"stage_version":       bson.M{"bsonType": bson.A{"long", "int"}, "minimum": 0},
				"status":              bson.M{"enum": bson.A{models.DocumentStatusNew, models.DocumentStatusInProgress, models.DocumentStatusDone}},
				"priority":            bson.M{"enum": bson.A{"", models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent}},
				"deadline":            bson.M{"bsonType": bson.A{"date", "null"}},
				"primary_executor_id": objectIDOrNull,
				"co_executor_ids":     bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
			},
		},
	}
}

func stageHistorySchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"document_id", "stage", "entered_at", "open"},
			"properties": bson.M{
				"document_id":      bson.M{"bsonType": "objectId"},
				"stage":            bson.M{"enum": enum(models.Stages)},
				"entered_at":       bson.M{"bsonType": "date"},
				"exited_at":        bson.M{"bsonType": bson.A{"date", "null"}},
				"duration_minutes": bson.M{"bsonType": bson.A{"long", "int", "null"}, "minimum": 0},
				"open":             bson.M{"bsonType": "bool"},
			},
		},
	}
}

func violationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "created_at", "level", "kind", "reason"},
			"properties": bson.M{
				"user_id":    bson.M{"bsonType": "objectId"},
				"created_at": bson.M{"bsonType": "date"},
				"level":      bson.M{"enum": enum(models.DisciplinaryLevels)},
				"kind":       bson.M{"enum": bson.A{models.ViolationStageOverrun, models.ViolationDeadline, models.ViolationManual}},
				"reason":     bson.M{"bsonType": "string", "minLength": 1},
			},
		},
	}
}

func kpiSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "period", "score"},
			"properties": bson.M{
				"user_id":       bson.M{"bsonType": "objectId"},
				"period":        bson.M{"bsonType": "string", "pattern": "^[0-9]{4}-[0-9]{2}$"},
				"score":         bson.M{"bsonType": bson.A{"double", "int", "long"}, "minimum": 0},
				"penalty_total": bson.M{"bsonType": bson.A{"double", "int", "long"}, "minimum": 0},
			},
		},
	}
}

func jobsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"correlation_id", "kind", "status", "next_attempt_at"},
			"properties": bson.M{
				"kind":   bson.M{"enum": bson.A{models.SideEffectNotify, models.SideEffectAudit}},
				"status": bson.M{"enum": bson.A{models.JobPending, models.JobProcessing, models.JobDone, models.JobFailed}},
			},
		},
	}
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "role"},
			"properties": bson.M{
				"full_name":     bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"role":          bson.M{"enum": enum(models.UserRoles)},
				"status":        bson.M{"enum": bson.A{models.UserActive, models.UserDisabled}},
				"department_id": objectIDOrNull,
				"manager_id":    objectIDOrNull,
			},
		},
	}
}
