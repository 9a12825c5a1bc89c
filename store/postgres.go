// Package store persists the normalized daily-flows record in Postgres,
// idempotently keyed by run date.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nsepulse/fiidii/models"
)

// ist is the exchange's timezone for the insert timestamp. FixedZone keeps
// the job working on hosts without tzdata.
var ist = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+1800)
}()

// Store wraps the daily-flows table.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection. The pool is kept
// tiny; this is a run-once job, not a server.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: connection string is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the flows table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS t_nse_fii_dii_eq_data (
	run_dt   DATE PRIMARY KEY,
	dii_buy  NUMERIC(12,2),
	dii_sell NUMERIC(12,2),
	dii_net  NUMERIC(12,2),
	fii_buy  NUMERIC(12,2),
	fii_sell NUMERIC(12,2),
	fii_net  NUMERIC(12,2),
	i_ts     TIMESTAMPTZ NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO t_nse_fii_dii_eq_data
	(run_dt, dii_buy, dii_sell, dii_net, fii_buy, fii_sell, fii_net, i_ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_dt) DO UPDATE SET
	dii_buy  = EXCLUDED.dii_buy,
	dii_sell = EXCLUDED.dii_sell,
	dii_net  = EXCLUDED.dii_net,
	fii_buy  = EXCLUDED.fii_buy,
	fii_sell = EXCLUDED.fii_sell,
	fii_net  = EXCLUDED.fii_net,
	i_ts     = EXCLUDED.i_ts
RETURNING (xmax <> 0)`

// Upsert inserts or updates the record for its run date and reports
// whether the date already existed. xmax is zero on a freshly inserted
// tuple, non-zero when ON CONFLICT updated an existing one.
func (s *Store) Upsert(ctx context.Context, f *models.DailyFlows) (existed bool, err error) {
	err = s.db.QueryRowContext(ctx, upsertSQL,
		f.RunDate, f.DIIBuy, f.DIISell, f.DIINet, f.FIIBuy, f.FIISell, f.FIINet,
		time.Now().In(ist),
	).Scan(&existed)
	if err != nil {
		return false, fmt.Errorf("store: upsert %s: %w", f.RunDate.Format("2006-01-02"), err)
	}
	return existed, nil
}
