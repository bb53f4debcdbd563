//go:build cgo

package rdsstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	embedded "github.com/dolthub/driver"
)

// openDoltEmbedded opens an embedded, single-process Dolt database at
// cfg.Path — mirroring the teacher's newEmbeddedMode, minus the version
// control surface (commit/push/pull) this cache has no use for; RDS only
// needs the database/sql connection Dolt's embedded driver exposes.
func openDoltEmbedded(ctx context.Context, cfg Config) (*sql.DB, error) {
	if info, err := os.Stat(cfg.Path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("rdsstore: dolt path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("rdsstore: create dolt directory: %w", err)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("rdsstore: resolve dolt path: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "rds"
	}

	initDSN := fmt.Sprintf("file://%s?commitname=rds&commitemail=rds@localhost", absPath)
	if err := withConnectRetry(ctx, func() error {
		return withEmbeddedDolt(initDSN, func(db *sql.DB) error {
			_, execErr := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database))
			return execErr
		})
	}); err != nil {
		return nil, fmt.Errorf("rdsstore: create dolt database: %w", err)
	}

	dbDSN := fmt.Sprintf("file://%s?commitname=rds&commitemail=rds@localhost&database=%s", absPath, database)
	openCfg, err := embedded.ParseDSN(dbDSN)
	if err != nil {
		return nil, fmt.Errorf("rdsstore: parse dolt dsn: %w", err)
	}

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, fmt.Errorf("rdsstore: create dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Dolt embedded mode is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// withEmbeddedDolt opens a throwaway connection against dsn, runs fn, and
// always closes the connection+connector afterward — used for the one-shot
// CREATE DATABASE IF NOT EXISTS step, which needs no pool.
func withEmbeddedDolt(dsn string, fn func(db *sql.DB) error) error {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	defer connector.Close()

	return fn(db)
}
