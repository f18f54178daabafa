// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/docflow/internal/app/system/indexes"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectDB opens the MongoDB client and verifies it with a ping.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	timeouts.ConfigureFromEnv()

	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize).
		SetConnectTimeout(timeouts.Medium())

	connectCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := timeouts.WithTimeout(ctx, timeouts.Ping(), logger, "mongo ping")
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		Runtime:       &Runtime{},
	}, nil
}

// EnsureSchema installs the collection validators, then the indexes.
// Validators come first because they create the collections.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	schemaCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), logger, "ensure schema")
	defer cancel()

	if err := validators.EnsureAll(schemaCtx, deps.MongoDatabase); err != nil {
		logger.Error("collection validators failed", zap.Error(err))
		return fmt.Errorf("ensure validators: %w", err)
	}
	if err := indexes.EnsureAll(schemaCtx, deps.MongoDatabase); err != nil {
		logger.Error("index setup failed", zap.Error(err))
		return fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("schema ensured")
	return nil
}
