package migration

import (
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded schema targets postgres; other dialects (sqlite in
		// tests) migrate through gorm instead.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}
		return seed.EnsureBroker(conn, cfg)
	}),
)
