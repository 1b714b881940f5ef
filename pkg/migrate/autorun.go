package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tablepay-backend/pkg/config"
	"github.com/angelmondragon/tablepay-backend/pkg/db"
	"github.com/angelmondragon/tablepay-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev
// with TABLEPAY_AUTO_MIGRATE set. Sqlite databases are skipped.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "driver", cfg.DB.Driver)
	if cfg.DB.Driver != config.DriverPostgres {
		logg.Warn(ctx, "auto-migrate skipped, goose migrations target postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := Run(ctx, sqlDB, nil, "up", logg); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	return nil
}
