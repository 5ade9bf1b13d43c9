package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slotswap-backend/config"
	"slotswap-backend/internal/model"
)

// Init opens the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Println("Database initialization complete.")
	return db, nil
}

// Open connects to the configured driver and applies pool settings.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(SQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Zero values keep database/sql defaults. An in-memory sqlite database
	// lives only as long as its connections, so do not force them closed.
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// sqliteParams make every transaction take the write lock on BEGIN and wait
// up to five seconds for it.
var sqliteParams = []string{"_txlock=immediate", "_busy_timeout=5000"}

// SQLiteDSN adds the locking parameters to dsn unless it already sets them.
func SQLiteDSN(dsn string) string {
	for _, param := range sqliteParams {
		key := param[:strings.IndexByte(param, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.User{},
		&model.Event{},
		&model.SwapRequest{},
		&model.SwapClaim{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		applyPostgresDDL(db)
	}
	return nil
}

// applyPostgresDDL adds constraints AutoMigrate cannot express.
// Failures are logged; swap_claims already enforces the pending-swap rule.
func applyPostgresDDL(db *gorm.DB) {
	ddls := []string{
		`DO $$ BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'events_time_range_valid') THEN
				ALTER TABLE events ADD CONSTRAINT events_time_range_valid CHECK (start_time < end_time);
			END IF;
		END $$;`,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_swap_requests_pending_requester_slot " +
			"ON swap_requests (requester_slot_id) WHERE status = 'PENDING';",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_swap_requests_pending_recipient_slot " +
			"ON swap_requests (recipient_slot_id) WHERE status = 'PENDING';",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			log.Printf("DDL execution warning (query: %q): %v", ddl, err)
		}
	}
}
