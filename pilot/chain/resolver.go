package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// Recognized intents. Anything else the model invents collapses to question.
const (
	IntentQuestion       = "question"
	IntentFollowup       = "followup"
	IntentGreeting       = "greeting"
	IntentClarification  = "clarification"
	IntentPersonalUpdate = "personal_update"
)

var knownIntents = map[string]bool{
	IntentQuestion:       true,
	IntentFollowup:       true,
	IntentGreeting:       true,
	IntentClarification:  true,
	IntentPersonalUpdate: true,
}

const (
	resolverMaxTokens      = 256
	lastAnswerContextRunes = 500
)

// Resolution is the resolver's verdict about a user query: its intent, a
// standalone search query with any follow-up references resolved, and user
// attributes volunteered along the way.
type Resolution struct {
	Intent      string
	SearchQuery string
	IsFollowup  bool
	Attributes  map[string]string
	// Fallback is set when the model call or parse failed and the
	// resolution was synthesized from the raw query.
	Fallback bool
}

// IntentResolver asks the model to classify the query and rewrite follow-ups
// into standalone search queries. It never fails: any model or parse error
// degrades to a pass-through resolution.
type IntentResolver struct {
	provider ports.Provider
	parser   *OutputParser
	logger   zerolog.Logger
}

// NewIntentResolver wires a provider and parser.
func NewIntentResolver(provider ports.Provider, parser *OutputParser, logger zerolog.Logger) *IntentResolver {
	return &IntentResolver{
		provider: provider,
		parser:   parser,
		logger:   logger.With().Str("component", "intent_resolver").Logger(),
	}
}

const resolverSystemPrompt = `You analyze user messages for a document question-answering assistant.
Respond with a single JSON object and nothing else:
{"intent": "...", "search_query": "...", "is_followup": true or false, "attributes": {}}

Rules:
- intent is one of: "question", "followup", "greeting", "clarification", "personal_update".
- intent is "greeting" only for pure greetings or small talk with no information need.
- search_query must be a standalone query: resolve pronouns and references using the conversation.
- is_followup is true when the message depends on the previous exchange to be understood.
- attributes holds personal facts the user states about themselves (name, location, occupation, income, age, category). Empty object when none.`

// Resolve classifies the query. lastTurn may be nil.
func (r *IntentResolver) Resolve(ctx context.Context, question, historyContext string, lastTurn *ports.Turn) Resolution {
	prompt := r.buildPrompt(question, historyContext, lastTurn)

	completion, err := r.provider.Complete(ctx, prompt, ports.Options{
		MaxNewTokens: resolverMaxTokens,
		Temperature:  0,
		TopP:         1,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("resolution call failed, using fallback")
		return r.fallback(question, historyContext)
	}

	resolution, err := r.parser.ParseResolution(completion.Text)
	if err != nil {
		r.logger.Warn().Err(err).Str("raw", completion.Text).Msg("resolution parse failed, using fallback")
		return r.fallback(question, historyContext)
	}

	if !knownIntents[resolution.Intent] {
		resolution.Intent = IntentQuestion
	}
	if resolution.SearchQuery == "" {
		resolution.SearchQuery = question
	}
	return resolution
}

func (r *IntentResolver) buildPrompt(question, historyContext string, lastTurn *ports.Turn) ports.PromptInput {
	var b strings.Builder
	if historyContext != "" {
		b.WriteString(historyContext)
		b.WriteString("\n\n")
	}
	if lastTurn != nil {
		fmt.Fprintf(&b, "Previous exchange:\nUser: %s\nAssistant: %s\n\n",
			lastTurn.Question, truncateRunes(lastTurn.Answer, lastAnswerContextRunes))
	}
	b.WriteString("Current message: ")
	b.WriteString(question)

	return ports.PromptInput{
		System: resolverSystemPrompt,
		User:   b.String(),
	}
}

// fallback passes the raw query through untouched. A non-empty history makes
// the conservative assumption that the query might be a follow-up.
func (r *IntentResolver) fallback(question, historyContext string) Resolution {
	return Resolution{
		Intent:      IntentQuestion,
		SearchQuery: question,
		IsFollowup:  historyContext != "",
		Attributes:  map[string]string{},
		Fallback:    true,
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
