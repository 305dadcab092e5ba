package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is the subset of database/sql the SQL store needs, satisfied by both
// *sql.DB and *sql.Tx. Open the handle with the pgx stdlib driver.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists session records in a relational table for deployments
// that need durable, auditable session listings. The payload column holds
// the same versioned binary schema the other backends use; subject_id and
// expires_at are broken out for indexed lookups and reaping. SQL has no
// native TTL, so reclamation runs through Reap on whatever cadence the
// operator chooses.
type SQLStore struct {
	db DBTX
}

// NewSQLStore binds a store to db. The schema must already exist; see
// Bootstrap.
func NewSQLStore(db DBTX) *SQLStore {
	return &SQLStore{db: db}
}

// Bootstrap creates the session table and its subject index if missing.
func (s *SQLStore) Bootstrap(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS session_records (
			token      TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			payload    BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS session_records_subject_idx
			ON session_records (subject_id);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Put implements Store. The upsert keeps per-token writes atomic.
func (s *SQLStore) Put(ctx context.Context, record *Record, ttl time.Duration) error {
	payload, err := Encode(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO session_records (token, subject_id, payload, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE
			SET subject_id = EXCLUDED.subject_id,
			    payload = EXCLUDED.payload,
			    expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, record.Token, record.SubjectID, payload, time.Now().Add(ttl)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, token string) (*Record, error) {
	query := `
		SELECT payload
		FROM session_records
		WHERE token = $1 AND expires_at > now()
	`
	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, token).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	record.Token = token

	return record, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM session_records
		WHERE token = $1
	`
	if _, err := s.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ListBySubject implements Store.
func (s *SQLStore) ListBySubject(ctx context.Context, subjectID string) ([]*Record, error) {
	query := `
		SELECT token, payload
		FROM session_records
		WHERE subject_id = $1 AND expires_at > now()
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			token   string
			payload []byte
		)
		if err := rows.Scan(&token, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		record, err := Decode(payload)
		if err != nil {
			return nil, err
		}
		record.Token = token
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return records, nil
}

// RefreshTTL implements Store.
func (s *SQLStore) RefreshTTL(ctx context.Context, token string, ttl time.Duration) error {
	query := `
		UPDATE session_records
		SET expires_at = $2
		WHERE token = $1 AND expires_at > now()
	`
	result, err := s.db.ExecContext(ctx, query, token, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Reap deletes physically expired rows and reports how many were removed.
func (s *SQLStore) Reap(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM session_records
		WHERE expires_at <= now()
	`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if db, ok := s.db.(*sql.DB); ok {
		return db.Close()
	}
	return nil
}
