// Package txn runs multi-collection writes inside a MongoDB transaction.
//
// Standalone servers (typical in local development) reject transactions; in
// that case Run logs once per call and executes fn without one.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a transaction on db's client. If ctx already carries
// a session (a nested call), fn joins the outer transaction.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			warnFallback(log, err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		// The aborted attempt left nothing behind; retry without a transaction.
		warnFallback(log, err)
		return fn(ctx)
	}
	return err
}

// Runner binds Run to a database so it can be passed where a
// transaction runner is expected.
type Runner struct {
	DB  *mongo.Database
	Log *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(db *mongo.Database, log *zap.Logger) *Runner {
	return &Runner{DB: db, Log: log}
}

// Run executes fn in a transaction.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return Run(ctx, r.DB, r.Log, fn)
}

func warnFallback(log *zap.Logger, err error) {
	if log == nil {
		return
	}
	log.Warn("transactions not supported; running without transaction", zap.Error(err))
}

// IsNotSupported reports whether err means the server cannot run
// transactions (standalone mongod, some DocumentDB versions).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263: // IllegalOperation, IllegalOperation (legacy), OperationNotSupportedInTransaction
			return true
		}
	}

	s := strings.ToLower(err.Error())
	has := func(sub string) bool { return strings.Contains(s, sub) }
	switch {
	case has("transaction") && has("replica set"):
		return true
	case has("session") && has("not supported"):
		return true
	case has("transaction") && has("session"):
		return true
	case has("illegal operation"):
		return true
	}
	return false
}
