// Package rdsstore opens and initialises the SQL connection the RDS cache
// runs against. It supports three dialects: an embedded, CGO-free SQLite
// database (the default, suited to a single filesystem host), an embedded
// Dolt database via dolthub/driver (CGO required, store_dolt_embedded.go),
// and a MySQL-protocol connection to a Dolt server (for a federated/shared
// deployment) — mirroring the teacher's embedded-vs-server-mode split in
// dolt/store.go.
package rdsstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tagsistant/rds/internal/rdscache"
	"github.com/tagsistant/rds/internal/rdsstore/doltutil"
)

// Dialect selects which SQL backend Open connects to.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql" // Dolt sql-server, MySQL wire protocol
	DialectDolt   Dialect = "dolt"  // embedded Dolt engine, CGO required
)

// Config configures Open.
type Config struct {
	Dialect Dialect

	// SQLite: path to the database file, or ":memory:" for a throwaway one.
	// Dolt (embedded): path to the Dolt database directory.
	Path string

	// MySQL/Dolt server mode.
	Host     string
	Port     int
	User     string
	Password string
	// Database also names the embedded Dolt database (DialectDolt), default "rds".
	Database string
	TLS      bool

	// MaxOpenConns bounds the pool; 0 means database/sql's default.
	MaxOpenConns int
}

func applyDefaults(cfg *Config) {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectSQLite
	}
	if cfg.Dialect == DialectMySQL {
		if cfg.Host == "" {
			cfg.Host = "127.0.0.1"
		}
		if cfg.Port == 0 {
			cfg.Port = 3306
		}
		if cfg.User == "" {
			cfg.User = "root"
		}
		if cfg.Database == "" {
			cfg.Database = "rds"
		}
	}
	if cfg.Dialect == DialectDolt {
		if cfg.Path == "" {
			cfg.Path = "./rds-dolt"
		}
		if cfg.Database == "" {
			cfg.Database = "rds"
		}
	}
}

// Store owns the *sql.DB connection and the schema it was initialised with.
type Store struct {
	DB      *sql.DB
	dialect Dialect
}

// Open connects to the configured backend and ensures the RDS_catalog/RDS
// schema exists, creating it if necessary.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	applyDefaults(&cfg)

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Dialect {
	case DialectSQLite:
		db, err = openSQLite(cfg)
	case DialectMySQL:
		db, err = openMySQL(ctx, cfg)
	case DialectDolt:
		db, err = openDoltEmbedded(ctx, cfg)
	default:
		return nil, fmt.Errorf("rdsstore: unknown dialect %q", cfg.Dialect)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := initSchema(ctx, db, cfg.Dialect); err != nil {
		db.Close()
		slog.Error("rds store schema init failed", "dialect", cfg.Dialect, "error", err)
		return nil, err
	}

	slog.Info("rds store opened", "dialect", cfg.Dialect)
	return &Store{DB: db, dialect: cfg.Dialect}, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(wal)"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("rdsstore: open sqlite: %w", err)
	}
	return db, nil
}

func openMySQL(ctx context.Context, cfg Config) (*sql.DB, error) {
	connStr := buildMySQLDSN(cfg, cfg.Database)
	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, fmt.Errorf("rdsstore: open mysql: %w", err)
	}
	if err := withConnectRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("rdsstore: ping mysql: %w", err)
	}
	return db, nil
}

func buildMySQLDSN(cfg Config, database string) string {
	tls := ""
	if cfg.TLS {
		tls = "&tls=true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, database, tls)
}

// initSchema applies rdscache.Schema (or MySQLSchema for the mysql and dolt
// dialects),
// splitting on statement boundaries the way the teacher's initSchemaOnDB
// does, since neither SQLite's nor MySQL's driver accepts multi-statement
// Exec calls reliably.
func initSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	script := rdscache.Schema
	if dialect == DialectMySQL || dialect == DialectDolt {
		script = rdscache.MySQLSchema
	}

	for _, stmt := range splitStatements(script) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		err := withConnectRetry(ctx, func() error {
			_, execErr := db.ExecContext(ctx, stmt)
			return execErr
		})
		if err != nil {
			return fmt.Errorf("rdsstore: schema init failed: %w\nstatement: %s", err, truncateForError(stmt))
		}
	}
	return nil
}

// splitStatements splits a SQL script on ';' boundaries, respecting quoted
// strings so a literal semicolon inside a value isn't mistaken for a
// statement terminator.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]
		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}
		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}
		if c == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

func truncateForError(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// Close shuts the connection down, bounding how long a stuck driver close
// can block the caller.
func (s *Store) Close() error {
	return doltutil.CloseWithTimeout("rdsstore", func() error {
		return s.DB.Close()
	})
}

// Dialect reports which backend this store opened.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping round-trips against the connection, used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
