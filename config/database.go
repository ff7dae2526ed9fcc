package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// DatabaseOptions selects the storage binding for the engine.
//
// The default is an embedded SQLite database (single connection, serialized
// writers), which is what the engine's concurrency model assumes. Setting
// DB_HOST switches to MySQL for server deployments; the engine semantics do
// not change, only the dialector.
type DatabaseOptions struct {
	// Path of the SQLite file. ":memory:" gives an isolated in-memory store
	// (used by tests). Ignored when DB_HOST is set.
	Path string
}

// OpenDatabase opens the store and returns an explicit handle. Every engine
// component takes this handle through its constructor; there is no package
// level database.
func OpenDatabase(opts DatabaseOptions) (*gorm.DB, error) {
	dialector := selectDialector(opts)

	db, err := gorm.Open(dialector, initConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		if isEmbedded() {
			// Single embedded connection: SQLite serializes writers, and a
			// second connection would only trade lock errors for waiting.
			sqlDB.SetMaxOpenConns(1)
			sqlDB.SetMaxIdleConns(1)
		} else {
			maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 50)
			maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 25)
			connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
			connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

			if maxOpen > 0 {
				sqlDB.SetMaxOpenConns(maxOpen)
			}
			if maxIdle >= 0 {
				sqlDB.SetMaxIdleConns(maxIdle)
			}
			if connMaxLife > 0 {
				sqlDB.SetConnMaxLifetime(connMaxLife)
			}
			if connMaxIdle > 0 {
				sqlDB.SetConnMaxIdleTime(connMaxIdle)
			}
		}
	}

	if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("db opened but failed to install otelgorm plugin: %v", pluginErr)
	}
	return db, nil
}

func selectDialector(opts DatabaseOptions) gorm.Dialector {
	if !isEmbedded() {
		dbUser := os.Getenv("DB_USER")
		dbPassword := os.Getenv("DB_PASSWORD")
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		dbName := os.Getenv("DB_NAME")

		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?multiStatements=true&parseTime=true",
			dbUser, dbPassword, dbHost, dbPort, dbName)
		return mysql.Open(dsn)
	}

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("DB_PATH"))
	}
	if path == "" {
		path = "metalflow.db"
	}
	return sqlite.Open(path)
}

func isEmbedded() bool {
	return strings.TrimSpace(os.Getenv("DB_HOST")) == ""
}

// SnapshotDatabase serializes the embedded store into a standalone SQLite
// file and returns its bytes. This is the state handed to the persistence
// sink; it is only supported for the embedded binding.
func SnapshotDatabase(db *gorm.DB) ([]byte, error) {
	if !isEmbedded() {
		return nil, fmt.Errorf("snapshot: not an embedded database")
	}
	tmpDir, err := os.MkdirTemp("", "metalflow-snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	target := filepath.Join(tmpDir, "state.db")
	if err := db.Exec("VACUUM INTO ?", target).Error; err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return data, nil
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

// InitLog Connection Log Configuration
func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

// InitNamingStrategy Init NamingStrategy
func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
