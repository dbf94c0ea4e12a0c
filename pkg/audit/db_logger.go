package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// DBLogger writes records to a PostgreSQL audit_logs table.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit_logs table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return logger, nil
}

// OpenDB opens a PostgreSQL connection for audit logging.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	return db, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		action VARCHAR(100) NOT NULL,
		outcome VARCHAR(20) NOT NULL,
		principal_id VARCHAR(100),
		principal_role VARCHAR(30),
		resource VARCHAR(50),
		resource_id VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		duration_ms BIGINT,
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_principal_id ON audit_logs(principal_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_outcome ON audit_logs(outcome);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_ip_address ON audit_logs(ip_address);
	`
	_, err := l.db.Exec(query)
	return err
}

// Log inserts one record and sets its ID from the database.
func (l *DBLogger) Log(ctx context.Context, rec *Record) error {
	var metadataJSON []byte
	var err error
	if rec.Metadata != nil {
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, action, outcome,
			principal_id, principal_role,
			resource, resource_id,
			ip_address, user_agent, request_id,
			method, path, status_code, duration_ms,
			message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $16
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		rec.Timestamp, rec.Action, rec.Outcome,
		rec.PrincipalID, rec.PrincipalRole,
		rec.Resource, rec.ResourceID,
		rec.IPAddress, rec.UserAgent, rec.RequestID,
		rec.Method, rec.Path, rec.StatusCode, rec.DurationMs,
		rec.Message, metadataJSON,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Purge deletes records older than the retention window.
func (l *DBLogger) Purge(ctx context.Context, policy RetentionPolicy) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE timestamp < NOW() - ($1 || ' days')::interval`,
		policy.RetentionDays,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database handle.
func (l *DBLogger) Close() error {
	return l.db.Close()
}
