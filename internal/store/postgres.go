package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS payment_plans (
	id BIGSERIAL PRIMARY KEY,
	merchant_id BIGINT NOT NULL REFERENCES users(id),
	customer_email TEXT NOT NULL,
	principal NUMERIC(12,2) NOT NULL,
	annual_rate NUMERIC(5,2) NOT NULL,
	installment_count INTEGER NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	cadence TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS installments (
	id BIGSERIAL PRIMARY KEY,
	plan_id BIGINT NOT NULL REFERENCES payment_plans(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	total NUMERIC(12,2) NOT NULL,
	principal NUMERIC(12,2) NOT NULL,
	interest NUMERIC(12,2) NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	paid_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (plan_id, number)
);
CREATE INDEX IF NOT EXISTS idx_installments_status_due ON installments (status, due_date);
CREATE INDEX IF NOT EXISTS idx_plans_merchant ON payment_plans (merchant_id);
CREATE INDEX IF NOT EXISTS idx_plans_customer ON payment_plans (customer_email);
`

// NewPostgres opens a PostgreSQL-backed store and initializes the schema.
func NewPostgres(conn string, log *logrus.Logger) (Storage, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("Postgres connection established and schema initialized")
	return &sqlStore{
		db: db,
		dialect: dialect{
			name:           "postgres",
			bindPositional: true,
			lockSuffix:     " FOR UPDATE",
		},
		log: log,
	}, nil
}
