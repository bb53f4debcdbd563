package rdscache

// Schema is the DDL for the two tables this package owns. It targets the
// SQLite dialect used by spec §6's schema listing (`integer primary key
// autoincrement`); a caller wiring a MySQL/Dolt backend instead should apply
// the MySQLSchema variant below, which has the same tables and columns but
// uses MySQL autoincrement syntax and column types (TINYINT expired, INT
// UNSIGNED inode) and declares its indexes inside CREATE TABLE.
//
// objects, tagging and tags are consumed but not owned by this package — the
// filesystem's tag/object bookkeeping layer creates and maintains them.
const Schema = `
CREATE TABLE IF NOT EXISTS RDS_catalog (
	rds_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	creation TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	subquery VARCHAR(1024) NOT NULL UNIQUE,
	expired  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS RDS (
	rds_id     INTEGER NOT NULL,
	inode      INTEGER NOT NULL,
	objectname VARCHAR(255) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rds_rds_id ON RDS(rds_id);
CREATE INDEX IF NOT EXISTS idx_rds_rds_id_inode ON RDS(rds_id, inode);
`

// MySQLSchema is the MySQL/Dolt-dialect equivalent of Schema, for a server
// or embedded Dolt backend (see internal/rdsstore). Dolt's auto_increment
// and unique-index semantics match MySQL's, not SQLite's.
const MySQLSchema = `
CREATE TABLE IF NOT EXISTS RDS_catalog (
	rds_id   INT AUTO_INCREMENT PRIMARY KEY,
	creation TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	subquery VARCHAR(1024) NOT NULL UNIQUE,
	expired  TINYINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS RDS (
	rds_id     INT NOT NULL,
	inode      INT UNSIGNED NOT NULL,
	objectname VARCHAR(255) NOT NULL,
	INDEX idx_rds_rds_id (rds_id),
	INDEX idx_rds_rds_id_inode (rds_id, inode)
);
`
