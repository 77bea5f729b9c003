package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Monetary columns are TEXT so no precision is lost; decimal values round-trip
// as strings.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS payment_plans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	merchant_id INTEGER NOT NULL REFERENCES users(id),
	customer_email TEXT NOT NULL,
	principal TEXT NOT NULL,
	annual_rate TEXT NOT NULL,
	installment_count INTEGER NOT NULL,
	start_date DATETIME NOT NULL,
	cadence TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS installments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id INTEGER NOT NULL REFERENCES payment_plans(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	total TEXT NOT NULL,
	principal TEXT NOT NULL,
	interest TEXT NOT NULL,
	due_date DATETIME NOT NULL,
	status TEXT NOT NULL,
	paid_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (plan_id, number)
);
CREATE INDEX IF NOT EXISTS idx_installments_status_due ON installments (status, due_date);
CREATE INDEX IF NOT EXISTS idx_plans_merchant ON payment_plans (merchant_id);
CREATE INDEX IF NOT EXISTS idx_plans_customer ON payment_plans (customer_email);
`

// NewSQLite opens a SQLite-backed store for local development and tests.
func NewSQLite(dataSourceName string, log *logrus.Logger) (Storage, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("SQLite connection established and schema initialized")
	return &sqlStore{
		db:      db,
		dialect: dialect{name: "sqlite3"},
		log:     log,
	}, nil
}
