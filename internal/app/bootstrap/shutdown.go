// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the background workers, then tears down the DB connection.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		if rt.Retry != nil {
			rt.Retry.Stop()
		}
		if rt.Scheduler != nil {
			rt.Scheduler.Stop()
		}
		if rt.ScanLimit != nil {
			rt.ScanLimit.Stop()
		}
		logger.Info("background workers stopped")
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
