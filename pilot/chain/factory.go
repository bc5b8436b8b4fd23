package chain

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/policypilot/policypilot/pilot/chain/adapters"
	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
	"github.com/policypilot/policypilot/pilot/memory"
)

// Factory creates and wires pipeline components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // optional, falls back to no-op stores
	index  ports.DocumentIndex
	logger zerolog.Logger
}

// NewFactory creates a factory. index is the deployment's document index; a
// nil index degrades to empty retrieval.
func NewFactory(cfg *config.Config, db *sql.DB, index ports.DocumentIndex, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, db: db, index: index, logger: logger}
}

// CreateOrchestrator wires a fully configured ChainOrchestrator.
func (f *Factory) CreateOrchestrator() *ChainOrchestrator {
	historyStore := f.createHistoryStore()
	profileStore := f.createProfileStore()
	provider := adapters.NewOpenAIProvider(f.cfg.LLM)
	parser := NewOutputParser()

	index := f.index
	if index == nil {
		index = &noOpIndex{}
	}

	deps := OrchestratorDeps{
		History:   memory.NewHistoryMemory(historyStore, f.cfg, f.logger),
		Profile:   memory.NewProfileManager(profileStore, f.logger),
		Resolver:  NewIntentResolver(provider, parser, f.logger),
		Index:     index,
		Reranker:  NewKeywordReranker(f.cfg.Reranker),
		Contexts:  NewContextBuilder(),
		Prompts:   NewPromptBuilder(),
		Provider:  provider,
		Validator: NewGroundingValidator(f.cfg.Validator, f.logger),
		Limiter:   f.createRateLimiter(),
		Tracer:    adapters.NewZerologTracer(f.logger),
		Logger:    f.logger,
	}
	return NewChainOrchestrator(deps, f.cfg)
}

func (f *Factory) createHistoryStore() ports.HistoryStore {
	if f.db == nil {
		return &noOpHistoryStore{}
	}
	return adapters.NewLibSQLHistoryStore(f.db)
}

func (f *Factory) createProfileStore() ports.ProfileStore {
	if f.db == nil {
		return &noOpProfileStore{}
	}
	return adapters.NewLibSQLProfileStore(f.db)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if f.cfg.LLM.RateLimitCapacity <= 0 {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.LLM.RateLimitCapacity, 100*time.Millisecond)
}

// noOpHistoryStore keeps nothing. Used when no database is wired.
type noOpHistoryStore struct{}

func (s *noOpHistoryStore) Append(ctx context.Context, userID string, turn ports.Turn) error {
	return nil
}

func (s *noOpHistoryStore) RecentWindow(ctx context.Context, userID string, limit int) ([]ports.Turn, error) {
	return nil, nil
}

func (s *noOpHistoryStore) LastTurn(ctx context.Context, userID string) (*ports.Turn, error) {
	return nil, nil
}

func (s *noOpHistoryStore) ClearUser(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (s *noOpHistoryStore) UserStats(ctx context.Context, userID string) (ports.HistoryStats, error) {
	return ports.HistoryStats{}, nil
}

// noOpProfileStore keeps nothing. Used when no database is wired.
type noOpProfileStore struct{}

func (s *noOpProfileStore) UpsertFields(ctx context.Context, userID string, fields map[string]string) error {
	return nil
}

func (s *noOpProfileStore) Attributes(ctx context.Context, userID string) (map[string]string, error) {
	return nil, nil
}

func (s *noOpProfileStore) DeleteField(ctx context.Context, userID, key string) (bool, error) {
	return false, nil
}

func (s *noOpProfileStore) Clear(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

// noOpIndex retrieves nothing.
type noOpIndex struct{}

func (i *noOpIndex) Retrieve(ctx context.Context, query, userID string, topK int) ([]ports.Passage, error) {
	return nil, nil
}

// noOpRateLimiter admits everything.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.HistoryStore  = (*noOpHistoryStore)(nil)
	_ ports.ProfileStore  = (*noOpProfileStore)(nil)
	_ ports.DocumentIndex = (*noOpIndex)(nil)
	_ ports.RateLimiter   = (*noOpRateLimiter)(nil)
)
