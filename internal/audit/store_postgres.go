package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"clinsight/models"
)

// PostgresStore persists audit entries in the audit_log table. Only INSERT
// and SELECT are ever issued.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore opens a connection pool and pings it.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, entry models.AuditEntry) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO audit_log (request_id, ts, request_hash, response_hash, model_version, latency_ms, signature, hallucination_alert)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.RequestID, entry.Timestamp, entry.RequestHash, entry.ResponseHash,
		entry.ModelVersion, entry.LatencyMS, entry.Signature, entry.HallucinationAlert,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByRequestID returns the stored entries for a request, oldest first.
// Read path exists for verification tooling only.
func (s *PostgresStore) ListByRequestID(ctx context.Context, requestID string) ([]models.AuditEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT request_id, ts, request_hash, response_hash, model_version, latency_ms, signature, hallucination_alert
        FROM audit_log WHERE request_id = $1 ORDER BY ts`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.RequestID, &e.Timestamp, &e.RequestHash, &e.ResponseHash,
			&e.ModelVersion, &e.LatencyMS, &e.Signature, &e.HallucinationAlert); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.DB.Close() }
