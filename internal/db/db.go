package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"discuss/internal/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured database and returns the gorm handle
// together with the underlying *sql.DB.
func Open(driver, dsn string, log *zap.SugaredLogger) (*gorm.DB, *sql.DB, error) {
	cfg := &gorm.Config{Logger: newLogger(log)}

	switch driver {
	case DriverSQLite, "":
		sqlDB, err := OpenSQLite(dsn)
		if err != nil {
			return nil, nil, err
		}
		gdb, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: sqlDB}), cfg)
		if err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("gorm sqlite: %w", err)
		}
		return gdb, sqlDB, nil
	case DriverPostgres:
		gdb, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("gorm postgres: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return gdb, sqlDB, sqlDB.Ping()
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
}

// OpenSQLite opens a pure-Go SQLite database. A single connection keeps
// writers serialised and lets ":memory:" databases survive between queries.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, err
	}
	return db, db.Ping()
}

func Migrate(ctx context.Context, gdb *gorm.DB) error {
	if err := gdb.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Infof(format, args...)
}

func newLogger(log *zap.SugaredLogger) logger.Interface {
	if log == nil {
		return logger.Discard
	}
	return logger.New(zapWriter{log: log.Named("gorm")}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
