// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// OpenOccupancyIndex is the unique partial index that allows one open
// stage_history row per document.
const OpenOccupancyIndex = "uniq_open_occupancy"

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"documents", ensureDocuments},
		{"stage_history", ensureStageHistory},
		{"violations", ensureViolations},
		{"kpi_records", ensureKPIRecords},
		{"notifications", ensureNotifications},
		{"side_effect_jobs", ensureSideEffectJobs},
		{"audit_events", ensureAuditEvents},
		{"users", ensureUsers},
	}

	var problems []string
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name    string `bson:"name"`
	Key     bson.D `bson:"key"`
	Unique  *bool  `bson:"unique,omitempty"`
	Partial bson.M `bson:"partialFilterExpression,omitempty"`
}

// desired is the part of an IndexModel we compare against the server.
type desired struct {
	name    string
	sig     string
	unique  bool
	partial bool
}

func describe(m mongo.IndexModel) desired {
	d := desired{sig: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		d.unique = m.Options.Unique != nil && *m.Options.Unique
		d.partial = m.Options.PartialFilterExpression != nil
	}
	return d
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// sameShape reports whether an existing index can serve d as is.
func (d desired) sameShape(ex existingIndex) bool {
	exUnique := ex.Unique != nil && *ex.Unique
	return d.unique == exUnique && d.partial == (len(ex.Partial) > 0)
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// ensureIndexSet creates each index in models, reusing an existing index with
// the same keys and shape. An index with the same keys but a different name
// or shape is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listExisting(ctx, coll)

	for _, m := range models {
		d := describe(m)
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", d.name),
			zap.String("keys", d.sig),
			zap.Bool("unique", d.unique))

		if ex, ok := existing[d.sig]; ok {
			if d.sameShape(ex) && (d.name == "" || d.name == ex.Name) {
				log.Debug("reusing existing index")
				continue
			}
			log.Info("replacing index", zap.String("existing", ex.Name))
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), d.name, err))
				continue
			}
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil {
			log.Warn("index ensure failed", zap.Error(err))
			if isDuplicateKeyErr(err) && d.unique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), d.name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), d.name, err))
			}
			continue
		}
		log.Info("index ensured",
			zap.String("created_name", created),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureDocuments(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("documents"), []mongo.IndexModel{
		// Registration numbers are unique once assigned.
		{
			Keys: bson.D{{Key: "reg_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_documents_regnumber").
				SetPartialFilterExpression(bson.M{"reg_number": bson.M{"$gt": ""}}),
		},
		// Overdue and upcoming scans.
		{
			Keys:    bson.D{{Key: "stage", Value: 1}, {Key: "deadline", Value: 1}},
			Options: options.Index().SetName("idx_documents_stage_deadline"),
		},
		// My documents as primary executor, by deadline.
		{
			Keys:    bson.D{{Key: "primary_executor_id", Value: 1}, {Key: "deadline", Value: 1}},
			Options: options.Index().SetName("idx_documents_primary_deadline"),
		},
		{
			Keys:    bson.D{{Key: "co_executor_ids", Value: 1}},
			Options: options.Index().SetName("idx_documents_coexecutors"),
		},
		{
			Keys:    bson.D{{Key: "reviewers.user_id", Value: 1}},
			Options: options.Index().SetName("idx_documents_reviewers_user"),
		},
		{
			Keys:    bson.D{{Key: "contributors.user_id", Value: 1}},
			Options: options.Index().SetName("idx_documents_contributors_user"),
		},
		// Department statistics.
		{
			Keys:    bson.D{{Key: "department_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_documents_dept_created"),
		},
	})
}

func ensureStageHistory(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("stage_history"), []mongo.IndexModel{
		// At most one open row per document.
		{
			Keys: bson.D{{Key: "document_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(OpenOccupancyIndex).
				SetPartialFilterExpression(bson.M{"open": true}),
		},
		// A document's history in entry order.
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "entered_at", Value: 1}},
			Options: options.Index().SetName("idx_history_doc_entered"),
		},
		// Stuck and nearing-deadline queries.
		{
			Keys:    bson.D{{Key: "stage", Value: 1}, {Key: "open", Value: 1}, {Key: "entered_at", Value: 1}},
			Options: options.Index().SetName("idx_history_stage_open_entered"),
		},
		{
			Keys:    bson.D{{Key: "performed_by", Value: 1}, {Key: "entered_at", Value: 1}},
			Options: options.Index().SetName("idx_history_performer_entered"),
		},
	})
}

func ensureViolations(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("violations"), []mongo.IndexModel{
		// Counting a user's violations inside a window.
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_violations_user_created"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_violations_created"),
		},
	})
}

func ensureKPIRecords(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("kpi_records"), []mongo.IndexModel{
		// One record per user per month.
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "period", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_kpi_user_period"),
		},
	})
}

func ensureNotifications(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("notifications"), []mongo.IndexModel{
		// Unread-first inbox, latest first.
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notifications_user_read_created"),
		},
	})
}

func ensureSideEffectJobs(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("side_effect_jobs"), []mongo.IndexModel{
		// Claiming due jobs.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}},
			Options: options.Index().SetName("idx_jobs_status_next"),
		},
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetName("idx_jobs_correlation"),
		},
		// Reclaiming jobs abandoned mid-processing.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("idx_jobs_status_updated"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_doc_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	})
}

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("users"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		{
			Keys:    bson.D{{Key: "department_id", Value: 1}, {Key: "full_name", Value: 1}},
			Options: options.Index().SetName("idx_users_dept_name"),
		},
		{
			Keys:    bson.D{{Key: "manager_id", Value: 1}},
			Options: options.Index().SetName("idx_users_manager"),
		},
	})
}
