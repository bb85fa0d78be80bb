package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gshvpn_backend/internal/model"
)

// Models lists every persisted entity in dependency order.
var Models = []interface{}{
	&model.User{},
	&model.VPNServer{},
	&model.Subscription{},
	&model.VPNKey{},
	&model.EmailNotification{},
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		PrepareStmt:    false, // Statement cache'i devre dışı bırak
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// InitDB opens the PostgreSQL database behind dsn.
func InitDB(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	pgConfig := postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // Prepared statement sorununu çözmek için
	}

	db, err := gorm.Open(postgres.New(pgConfig), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Connection pool limitleri
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info().Msg("database connected")
	return db, nil
}

// OpenSQLite opens a SQLite database, mainly for local runs and tests.
// SQLite allows a single writer, so the pool is capped at one connection.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func MigrateDatabase(db *gorm.DB, log zerolog.Logger, models ...interface{}) error {
	for _, m := range models {
		if !db.Migrator().HasTable(m) {
			if err := db.Migrator().CreateTable(m); err != nil {
				return fmt.Errorf("create table for %T: %w", m, err)
			}
			log.Debug().Str("model", fmt.Sprintf("%T", m)).Msg("created table")
			continue
		}
		if err := db.Migrator().AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
		log.Debug().Str("model", fmt.Sprintf("%T", m)).Msg("updated table")
	}
	return nil
}
