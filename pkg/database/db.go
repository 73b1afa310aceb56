package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Executor is the query surface shared by DB and Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
}

type DB interface {
	Executor
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Close() error
	DriverName() string
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
	Unsafe() *sqlx.DB
	// Flavor is the sqlbuilder dialect matching the driver
	Flavor() sqlbuilder.Flavor
	// Executor returns the transaction carried by ctx, or the pool when there is none
	Executor(ctx context.Context) Executor
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
	SQL() *sql.DB
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
	flavor sqlbuilder.Flavor
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
		flavor: FlavorFor(db.DriverName()),
	}
}

// Open connects with the named driver and verifies the connection
func Open(ctx context.Context, driverName, dsn string, logger ectologger.Logger) (DB, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driverName, err)
	}
	if driverName == DriverSQLite {
		// sqlite allows a single writer; one connection keeps transactions from tripping over each other
		db.SetMaxOpenConns(1)
	}
	return NewDatabaseInstance(db, logger), nil
}

// FlavorFor maps a driver name onto its sqlbuilder flavor. Unknown drivers use PostgreSQL.
func FlavorFor(driverName string) sqlbuilder.Flavor {
	switch driverName {
	case DriverSQLite, "sqlite":
		return sqlbuilder.SQLite
	default:
		return sqlbuilder.PostgreSQL
	}
}

func (db *DatabaseInstance) Flavor() sqlbuilder.Flavor {
	return db.flavor
}

func (db *DatabaseInstance) SQL() *sql.DB {
	return db.DB.DB
}

func (db *DatabaseInstance) Executor(ctx context.Context) Executor {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db.DB
}

func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}
