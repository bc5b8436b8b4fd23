package chain

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
	"github.com/policypilot/policypilot/pilot/memory"
)

// Flags set by the orchestrator itself, alongside the validator's flags.
const (
	FlagGreeting    = "greeting"
	FlagNoDocuments = "no_documents"
	FlagChainPanic  = "chain_panic"
)

const greetingDefaultAnswer = "Hello! How can I help you?"

const limiterKey = "llm"

// Result is the chain's public output for one question.
type Result struct {
	Answer     string
	Sources    []string
	Success    bool
	Message    string
	Intent     string
	Confidence string
	IsGrounded bool
	Flags      []string
}

// ChainOrchestrator runs the full answering pipeline: history, intent
// resolution, profile merge, retrieval, reranking, context assembly,
// generation, validation, and persistence.
type ChainOrchestrator struct {
	history   *memory.HistoryMemory
	profile   *memory.ProfileManager
	resolver  *IntentResolver
	index     ports.DocumentIndex
	reranker  Reranker
	contexts  *ContextBuilder
	prompts   *PromptBuilder
	provider  ports.Provider
	validator *GroundingValidator
	limiter   ports.RateLimiter
	tracer    ports.Tracer
	logger    zerolog.Logger

	topK        int
	maxTokens   int
	temperature float32
	topP        float32
	callTimeout time.Duration
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	History   *memory.HistoryMemory
	Profile   *memory.ProfileManager
	Resolver  *IntentResolver
	Index     ports.DocumentIndex
	Reranker  Reranker
	Contexts  *ContextBuilder
	Prompts   *PromptBuilder
	Provider  ports.Provider
	Validator *GroundingValidator
	Limiter   ports.RateLimiter
	Tracer    ports.Tracer
	Logger    zerolog.Logger
}

// NewChainOrchestrator wires the pipeline from its dependencies and config.
func NewChainOrchestrator(deps OrchestratorDeps, cfg *config.Config) *ChainOrchestrator {
	return &ChainOrchestrator{
		history:     deps.History,
		profile:     deps.Profile,
		resolver:    deps.Resolver,
		index:       deps.Index,
		reranker:    deps.Reranker,
		contexts:    deps.Contexts,
		prompts:     deps.Prompts,
		provider:    deps.Provider,
		validator:   deps.Validator,
		limiter:     deps.Limiter,
		tracer:      deps.Tracer,
		logger:      deps.Logger.With().Str("component", "chain_orchestrator").Logger(),
		topK:        cfg.LLM.TopK,
		maxTokens:   cfg.LLM.MaxNewTokens,
		temperature: cfg.LLM.Temperature,
		topP:        cfg.LLM.TopP,
		callTimeout: cfg.LLM.Timeout,
	}
}

// Answer runs the pipeline for one question. It never panics outward: any
// panic in the chain degrades to the canonical fallback with Success false.
func (o *ChainOrchestrator) Answer(ctx context.Context, userID, query string) *Result {
	var result *Result
	recovered := panics.Try(func() {
		result = o.run(ctx, userID, query)
	})
	if recovered != nil {
		o.logger.Error().
			Str("user_id", userID).
			Interface("panic", recovered.Value).
			Str("stack", string(recovered.Stack)).
			Msg("chain panicked, degrading to fallback")
		return &Result{
			Answer:     FallbackAnswer,
			Sources:    []string{},
			Success:    false,
			Message:    "internal pipeline error",
			Intent:     IntentQuestion,
			Confidence: ConfidenceNone,
			IsGrounded: false,
			Flags:      []string{FlagChainPanic},
		}
	}
	return result
}

func (o *ChainOrchestrator) run(ctx context.Context, userID, query string) *Result {
	ctx, finish := o.tracer.StartSpan(ctx, "chain.answer", map[string]any{"user_id": userID})
	defer finish(nil)

	// Step 1: conversation history.
	historyContext := o.history.HistoryContext(ctx, userID)
	lastTurn := o.history.LastExchange(ctx, userID)
	o.tracer.Event(ctx, "history_loaded", map[string]any{
		"context_len": len(historyContext),
		"has_last":    lastTurn != nil,
	})

	// Step 2: intent resolution and follow-up rewriting.
	resolution := o.resolver.Resolve(ctx, query, historyContext, lastTurn)
	o.tracer.Event(ctx, "intent_resolved", map[string]any{
		"intent":    resolution.Intent,
		"followup":  resolution.IsFollowup,
		"fallback":  resolution.Fallback,
		"attr_keys": len(resolution.Attributes),
	})

	// Step 3: merge volunteered attributes. This is a side effect: it runs
	// off the request path and its failure never gates the answer.
	var sideEffects conc.WaitGroup
	defer sideEffects.WaitAndRecover()
	if len(resolution.Attributes) > 0 {
		attrs := resolution.Attributes
		sideEffects.Go(func() {
			mergeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.callTimeout)
			defer cancel()
			if err := o.profile.Merge(mergeCtx, userID, attrs); err != nil {
				o.logger.Warn().Err(err).Str("user_id", userID).Msg("profile merge failed")
			}
		})
	}

	// Step 4: user profile context.
	profileContext := o.profile.Render(ctx, userID)

	// Step 4b: greetings skip retrieval entirely.
	if resolution.Intent == IntentGreeting {
		return o.answerGreeting(ctx, userID, query, historyContext, profileContext)
	}

	// Step 5: retrieval uses the rewritten standalone query.
	passages, err := o.index.Retrieve(ctx, resolution.SearchQuery, userID, o.topK)
	if err != nil {
		o.logger.Warn().Err(err).Msg("retrieval failed, continuing with no passages")
		passages = nil
	}
	o.tracer.Event(ctx, "retrieved", map[string]any{"passages": len(passages)})

	// No material at all: nothing retrieved and no history to lean on.
	// A follow-up with history still proceeds so the model can answer
	// from the conversation.
	if len(passages) == 0 && historyContext == "" {
		o.persist(ctx, userID, query, FallbackAnswer, []string{}, false)
		return &Result{
			Answer:     FallbackAnswer,
			Sources:    []string{},
			Success:    true,
			Message:    "No relevant information found",
			Intent:     resolution.Intent,
			Confidence: ConfidenceHigh,
			IsGrounded: true,
			Flags:      []string{FlagNoDocuments},
		}
	}

	// Step 6: rerank.
	ranked := o.reranker.Rerank(resolution.SearchQuery, passages)
	o.tracer.Event(ctx, "reranked", map[string]any{"passages": len(ranked)})

	// Step 7: layered context.
	contextBlock, corpus := o.contexts.Build(profileContext, historyContext, ranked)

	// Step 8: generation uses the user's original phrasing.
	prompt := o.prompts.Build(query, contextBlock)
	completion, err := o.complete(ctx, prompt, ports.Options{
		MaxNewTokens: o.maxTokens,
		Temperature:  o.temperature,
		TopP:         o.topP,
	})
	rawAnswer := completion.Text
	generationOK := err == nil && strings.TrimSpace(rawAnswer) != ""
	if !generationOK {
		o.logger.Error().Err(err).Msg("generation failed or returned empty output")
		rawAnswer = ""
	}

	// Step 9: validation against everything the model saw.
	sources := make([]string, 0, len(ranked))
	for _, p := range ranked {
		sources = append(sources, p.SourceID)
	}
	validation := o.validator.Validate(rawAnswer, corpus, sources)
	o.tracer.Event(ctx, "validated", map[string]any{
		"grounded":   validation.IsGrounded,
		"confidence": validation.Confidence,
		"score":      validation.GroundingScore,
	})

	// Step 10: persist. A failed write is logged, never surfaced.
	o.persist(ctx, userID, query, validation.FinalAnswer, validation.Citations, validation.IsValid)

	message := ""
	if !generationOK {
		message = "generation failed"
	}
	return &Result{
		Answer:     validation.FinalAnswer,
		Sources:    validation.Citations,
		Success:    generationOK,
		Message:    message,
		Intent:     resolution.Intent,
		Confidence: validation.Confidence,
		IsGrounded: validation.IsGrounded,
		Flags:      validation.Flags,
	}
}

// answerGreeting responds conversationally using only profile and history.
func (o *ChainOrchestrator) answerGreeting(ctx context.Context, userID, query, historyContext, profileContext string) *Result {
	contextBlock, _ := o.contexts.Build(profileContext, historyContext, nil)
	if contextBlock == "" {
		contextBlock = "(No documents or history available yet.)"
	}

	prompt := o.prompts.Build(query, contextBlock)
	completion, err := o.complete(ctx, prompt, ports.Options{
		MaxNewTokens: o.maxTokens,
		Temperature:  o.temperature,
		TopP:         o.topP,
	})
	answer := completion.Text
	if err != nil || strings.TrimSpace(answer) == "" {
		answer = greetingDefaultAnswer
	}

	o.persist(ctx, userID, query, answer, []string{}, true)
	return &Result{
		Answer:     answer,
		Sources:    []string{},
		Success:    true,
		Message:    "Greeting handled",
		Intent:     IntentGreeting,
		Confidence: ConfidenceHigh,
		IsGrounded: true,
		Flags:      []string{FlagGreeting},
	}
}

// complete gates a provider call behind the rate limiter and a per-call
// timeout.
func (o *ChainOrchestrator) complete(ctx context.Context, prompt ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	release, err := o.limiter.Acquire(ctx, limiterKey)
	if err != nil {
		return ports.Completion{}, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return o.provider.Complete(callCtx, prompt, opts)
}

// persist records the turn, swallowing write errors so a storage hiccup
// never loses an already-generated answer.
func (o *ChainOrchestrator) persist(ctx context.Context, userID, question, answer string, sources []string, succeeded bool) {
	if err := o.history.Record(ctx, userID, question, answer, sources, succeeded); err != nil {
		o.logger.Error().Err(err).Str("user_id", userID).Msg("failed to save conversation turn")
	}
}
