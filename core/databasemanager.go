package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type LogLevel int

const (
	LogLevelSilent LogLevel = iota + 1
	LogLevelError
	LogLevelWarn
	LogLevelInfo
)

// LocalTenant addresses the schema named in the DSN environment variable.
const LocalTenant = "localhost"

// DatabaseManager holds one pool to the MySQL server and hands out gorm
// handles bound to a single tenant schema.
type DatabaseManager struct {
	SqlDB    *sql.DB
	LogLevel LogLevel
	Logger   *logrus.Logger
}

// New creates the shared pool. dsn should NOT include a schema.
func New(dsn string, maxConnection int) (*DatabaseManager, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxConnection)
	sqlDB.SetMaxIdleConns(maxConnection)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping pool: %w", err)
	}

	return &DatabaseManager{SqlDB: sqlDB, LogLevel: LogLevelWarn, Logger: logrus.StandardLogger()}, nil
}

// SchemaOf maps a tenant (a request host such as "acme.attendance.app", a bare
// schema name or LocalTenant) to the schema holding its data.
func SchemaOf(tenant string) string {
	if tenant == LocalTenant {
		dsn := strings.SplitN(os.Getenv("DSN"), "?", 2)[0]
		segments := strings.Split(dsn, "/")
		return segments[len(segments)-1]
	}
	return strings.Split(tenant, ".")[0]
}

// GetDB returns a *gorm.DB bound to a dedicated connection switched to the
// tenant schema. The caller closes the returned connection.
func (dm *DatabaseManager) GetDB(ctx context.Context, tenant string) (*gorm.DB, *sql.Conn, error) {
	schema := SchemaOf(tenant)
	if schema == "" {
		return nil, nil, fmt.Errorf("no schema for tenant %q", tenant)
	}

	conn, err := dm.SqlDB.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conn: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "USE `"+schema+"`"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to use schema %s: %w", schema, err)
	}

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(dm.gormLogLevel()),
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(schema))); err != nil && dm.Logger != nil {
		dm.Logger.WithError(err).WithField("schema", schema).Warn("failed to install otelgorm plugin")
	}

	return db, conn, nil
}

// OpenSchema opens a dedicated pool on a DSN that names its schema. Unlike
// GetDB the handle is safe for concurrent use; the caller closes it with CloseDB.
func OpenSchema(dsn string, maxConnection int, level LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(level)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxConnection)
	sqlDB.SetMaxIdleConns(maxConnection)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		CloseDB(db)
		return nil, fmt.Errorf("failed to install otelgorm plugin: %w", err)
	}
	return db, nil
}

// CloseDB releases the pool behind a handle returned by OpenSchema.
func CloseDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (dm *DatabaseManager) gormLogLevel() logger.LogLevel {
	return gormLogLevel(dm.LogLevel)
}

func gormLogLevel(level LogLevel) logger.LogLevel {
	switch level {
	case LogLevelSilent:
		return logger.Silent
	case LogLevelError:
		return logger.Error
	case LogLevelWarn:
		return logger.Warn
	default:
		return logger.Info
	}
}

// Close closes the shared pool
func (dm *DatabaseManager) Close() error {
	return dm.SqlDB.Close()
}

// Exec runs fn against the tenant schema and releases the connection afterwards.
func (dm *DatabaseManager) Exec(ctx context.Context, tenant string, fn func(db *gorm.DB) error) error {
	db, conn, err := dm.GetDB(ctx, tenant)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(db)
}

// ListSchemas returns every non-system schema on the server.
func (dm *DatabaseManager) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := dm.SqlDB.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		if isSystemSchema(name) {
			continue
		}
		schemas = append(schemas, name)
	}

	return schemas, rows.Err()
}

func isSystemSchema(name string) bool {
	switch name {
	case "information_schema", "mysql", "performance_schema", "sys":
		return true
	}
	return false
}
