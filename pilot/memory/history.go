package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
)

const questionSummaryRunes = 80

// HistoryMemory turns raw stored history into a prompt-ready context block.
// Small windows render every turn verbatim; windows past the summary
// threshold collapse older turns into one-line bullets so the context stays
// bounded while the most recent turns keep full fidelity.
type HistoryMemory struct {
	store      ports.HistoryStore
	verbatim   int
	threshold  int
	fetchLimit int
	logger     zerolog.Logger
}

// NewHistoryMemory wires a history store with windowing settings.
func NewHistoryMemory(store ports.HistoryStore, cfg *config.Config, logger zerolog.Logger) *HistoryMemory {
	return &HistoryMemory{
		store:      store,
		verbatim:   cfg.History.VerbatimTurns,
		threshold:  cfg.History.SummaryThreshold,
		fetchLimit: cfg.HistoryFetchLimit(),
		logger:     logger.With().Str("component", "history_memory").Logger(),
	}
}

// HistoryContext returns the formatted conversation context for a user.
// Read failures degrade to an empty context rather than failing the request.
func (m *HistoryMemory) HistoryContext(ctx context.Context, userID string) string {
	window, err := m.store.RecentWindow(ctx, userID, m.fetchLimit)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("history read failed, continuing without context")
		return ""
	}
	return m.FormatWindow(window)
}

// FormatWindow renders a chronological window of turns.
//
// An empty window renders as the empty string. Windows at or below the
// summary threshold render entirely verbatim. Larger windows split: all but
// the last verbatim-count turns become summary bullets, the rest stay
// verbatim.
func (m *HistoryMemory) FormatWindow(window []ports.Turn) string {
	if len(window) == 0 {
		return ""
	}

	var b strings.Builder
	recent := window

	if len(window) > m.threshold {
		older := window[:len(window)-m.verbatim]
		recent = window[len(window)-m.verbatim:]

		b.WriteString("Summary of earlier conversation:\n")
		for _, turn := range older {
			b.WriteString("- Asked about: ")
			b.WriteString(truncateRunes(turn.Question, questionSummaryRunes))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Recent conversation:\n")
	for i, turn := range recent {
		b.WriteString("User: ")
		b.WriteString(turn.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.Answer)
		if i < len(recent)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// LastExchange returns the most recent successful turn, or nil. Read failures
// degrade to nil for the same reason HistoryContext degrades to empty.
func (m *HistoryMemory) LastExchange(ctx context.Context, userID string) *ports.Turn {
	turn, err := m.store.LastTurn(ctx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("last turn read failed")
		return nil
	}
	return turn
}

// Record persists a completed turn. Unlike reads, write failures propagate:
// the caller decides whether a lost turn should surface.
func (m *HistoryMemory) Record(ctx context.Context, userID, question, answer string, sources []string, succeeded bool) error {
	return m.store.Append(ctx, userID, ports.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Question:  question,
		Answer:    answer,
		Sources:   sources,
		Succeeded: succeeded,
		CreatedAt: time.Now().UTC(),
	})
}

// Stats exposes the underlying store's per-user stats.
func (m *HistoryMemory) Stats(ctx context.Context, userID string) (ports.HistoryStats, error) {
	return m.store.UserStats(ctx, userID)
}

// Clear removes a user's history.
func (m *HistoryMemory) Clear(ctx context.Context, userID string) (int64, error) {
	return m.store.ClearUser(ctx, userID)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
