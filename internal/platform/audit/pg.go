package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS ehr_access_log (
	id           UUID PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	request_id   TEXT NOT NULL,
	patient_id   TEXT,
	mrn          TEXT,
	vendor       TEXT,
	action       TEXT NOT NULL,
	method       TEXT NOT NULL,
	path         TEXT NOT NULL,
	status_code  INT NOT NULL,
	ip_address   TEXT,
	user_agent   TEXT
)`

// PGRecorder persists audit entries to Postgres. This is the only place
// the gateway touches a database; clinical data never lands here.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder connects, verifies the connection, and ensures the
// access-log table exists.
func NewPGRecorder(ctx context.Context, databaseURL string) (*PGRecorder, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ensure table: %w", err)
	}
	return &PGRecorder{pool: pool}, nil
}

func (r *PGRecorder) Record(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ehr_access_log
			(id, ts, request_id, patient_id, mrn, vendor, action, method, path, status_code, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Timestamp, e.RequestID, e.PatientID, e.MRN, e.Vendor,
		e.Action, e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (r *PGRecorder) Close() {
	r.pool.Close()
}
