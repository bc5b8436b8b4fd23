package chainports

import (
	"context"
	"time"
)

// Turn represents one completed question/answer exchange. Turns are
// append-only: they are created once per chain run and never mutated.
type Turn struct {
	ID        string    // uuid assigned at save time
	UserID    string    // opaque owner identifier
	Question  string    // the user's literal question
	Answer    string    // the final (validated) answer
	Sources   []string  // source identifiers cited by the answer, may be empty
	Succeeded bool      // whether the turn passed validation
	CreatedAt time.Time // server-side timestamp, totally orders a user's turns
}

// HistoryStats summarizes a user's conversation record.
type HistoryStats struct {
	TotalTurns      int
	SuccessfulTurns int
	SuccessRate     float64 // percentage, 0 when no turns exist
}

// HistoryStore persists conversation turns.
//
// RecentWindow and LastTurn only ever surface successful turns; failed turns
// are kept for stats but never feed back into context construction.
type HistoryStore interface {
	// Append persists a new turn. Errors propagate: the caller decides
	// whether a failed write should block the response.
	Append(ctx context.Context, userID string, turn Turn) error
	// RecentWindow returns up to limit most-recent successful turns in
	// chronological order (oldest first).
	RecentWindow(ctx context.Context, userID string, limit int) ([]Turn, error)
	// LastTurn returns the single most recent successful turn, or nil when
	// the user has none.
	LastTurn(ctx context.Context, userID string) (*Turn, error)
	// ClearUser deletes all turns for a user and reports how many were removed.
	ClearUser(ctx context.Context, userID string) (int64, error)
	// UserStats reports turn counts and success rate for a user.
	UserStats(ctx context.Context, userID string) (HistoryStats, error)
}
