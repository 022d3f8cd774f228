package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shi0417/kongfuworld-sub004/config"
	dbmysql "github.com/shi0417/kongfuworld-sub004/db/mysql"
	dbsqlite "github.com/shi0417/kongfuworld-sub004/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}

// IsUniqueViolation detects duplicate-key errors. Both drivers are opened with
// TranslateError, so gorm.ErrDuplicatedKey covers most cases; the message match
// catches raw Exec paths that bypass the translator.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
