package database

import (
	"context"

	"fuzzexp/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type DBParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.AppConfig
	Logger *zap.Logger
}

// NewDBConnection opens the results database and makes sure the results table exists.
func NewDBConnection(p DBParams) *gorm.DB {
	db, err := gorm.Open(postgres.Open(p.Config.DatabaseURL), &gorm.Config{})
	if err != nil {
		p.Logger.Fatal("failed to connect database", zap.Error(err))
	}
	if err := db.AutoMigrate(&JobResult{}); err != nil {
		p.Logger.Fatal("failed to migrate results table", zap.Error(err))
	}
	p.Logger.Debug("connected to database")

	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db
}
