package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/quoteflow-backend/internal/data/db"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		gdb, err := db.Open(cfg.Database, log)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := db.AutoMigrateAll(gdb); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		log.Info("Schema up to date", "driver", cfg.Database.Driver)
		return nil
	},
}
