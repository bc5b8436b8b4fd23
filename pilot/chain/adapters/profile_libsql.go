package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// LibSQLProfileStore implements ProfileStore on top of the user_profile table.
// Each attribute lives in its own row so individual fields can be upserted or
// deleted without read-modify-write cycles.
type LibSQLProfileStore struct {
	db *sql.DB
}

// NewLibSQLProfileStore creates a profile store backed by the given connection.
func NewLibSQLProfileStore(db *sql.DB) *LibSQLProfileStore {
	return &LibSQLProfileStore{db: db}
}

// UpsertFields writes all given fields in a single transaction.
func (s *LibSQLProfileStore) UpsertFields(ctx context.Context, userID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin profile tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO user_profile (user_id, field, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, field) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx, query, userID, field, value, now); err != nil {
			return fmt.Errorf("upsert field %q: %w", field, err)
		}
	}
	return tx.Commit()
}

// Attributes returns every stored attribute for the user.
func (s *LibSQLProfileStore) Attributes(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM user_profile WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan profile field: %w", err)
		}
		attrs[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile: %w", err)
	}
	return attrs, nil
}

// DeleteField removes one attribute, reporting whether it was present.
func (s *LibSQLProfileStore) DeleteField(ctx context.Context, userID, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_profile WHERE user_id = ? AND field = ?`, userID, key)
	if err != nil {
		return false, fmt.Errorf("delete field %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes all attributes for a user.
func (s *LibSQLProfileStore) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_profile WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear profile: %w", err)
	}
	return res.RowsAffected()
}

// Ensure LibSQLProfileStore implements the ProfileStore interface.
var _ ports.ProfileStore = (*LibSQLProfileStore)(nil)
