package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// turnTimeLayout is fixed width (no trimmed fractional zeros) so that the
// TEXT ORDER BY on created_at compares lexicographically in chronological
// order, including turns within the same second.
const turnTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LibSQLHistoryStore implements HistoryStore on top of the chat_history table.
type LibSQLHistoryStore struct {
	db *sql.DB
}

// NewLibSQLHistoryStore creates a history store backed by the given connection.
func NewLibSQLHistoryStore(db *sql.DB) *LibSQLHistoryStore {
	return &LibSQLHistoryStore{db: db}
}

// Append persists a turn. Sources are stored as a JSON array so the schema
// stays flat without a join table.
func (s *LibSQLHistoryStore) Append(ctx context.Context, userID string, turn ports.Turn) error {
	sources := turn.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO chat_history (id, user_id, question, answer, sources, succeeded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		turn.ID, userID, turn.Question, turn.Answer,
		string(sourcesJSON), boolToInt(turn.Succeeded), createdAt.UTC().Format(turnTimeLayout))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentWindow returns up to limit most-recent successful turns, oldest first.
func (s *LibSQLHistoryStore) RecentWindow(ctx context.Context, userID string, limit int) ([]ports.Turn, error) {
	const query = `
		SELECT id, user_id, question, answer, sources, succeeded, created_at
		FROM chat_history
		WHERE user_id = ? AND succeeded = 1
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// Rows come back newest-first; callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// LastTurn returns the most recent successful turn, or nil when none exist.
func (s *LibSQLHistoryStore) LastTurn(ctx context.Context, userID string) (*ports.Turn, error) {
	turns, err := s.RecentWindow(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}
	return &turns[0], nil
}

// ClearUser removes every turn for a user, successful or not.
func (s *LibSQLHistoryStore) ClearUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete turns: %w", err)
	}
	return res.RowsAffected()
}

// UserStats reports total/successful turn counts and the success rate.
func (s *LibSQLHistoryStore) UserStats(ctx context.Context, userID string) (ports.HistoryStats, error) {
	const query = `
		SELECT COUNT(*), COALESCE(SUM(succeeded), 0)
		FROM chat_history
		WHERE user_id = ?
	`
	var stats ports.HistoryStats
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&stats.TotalTurns, &stats.SuccessfulTurns); err != nil {
		return ports.HistoryStats{}, fmt.Errorf("query stats: %w", err)
	}
	if stats.TotalTurns > 0 {
		stats.SuccessRate = 100 * float64(stats.SuccessfulTurns) / float64(stats.TotalTurns)
	}
	return stats, nil
}

func scanTurn(rows *sql.Rows) (ports.Turn, error) {
	var (
		turn        ports.Turn
		sourcesJSON string
		succeeded   int
		createdAt   string
	)
	if err := rows.Scan(&turn.ID, &turn.UserID, &turn.Question, &turn.Answer,
		&sourcesJSON, &succeeded, &createdAt); err != nil {
		return ports.Turn{}, fmt.Errorf("scan turn: %w", err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &turn.Sources); err != nil {
		return ports.Turn{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	turn.Succeeded = succeeded != 0
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return ports.Turn{}, fmt.Errorf("parse created_at: %w", err)
	}
	turn.CreatedAt = ts
	return turn, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure LibSQLHistoryStore implements the HistoryStore interface.
var _ ports.HistoryStore = (*LibSQLHistoryStore)(nil)
