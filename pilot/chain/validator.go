package chain

import (
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/policypilot/policypilot/pilot/config"
)

// FallbackAnswer is the canonical refusal text surfaced whenever the pipeline
// cannot produce a grounded answer.
const FallbackAnswer = "Sorry, this document does not contain enough information to answer that."

// Confidence levels reported by validation.
const (
	ConfidenceNone   = "none"
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Validation flags.
const (
	FlagEmptyAnswer   = "empty_answer"
	FlagLLMRefusal    = "llm_refusal"
	FlagLowGrounding  = "low_grounding"
	FlagLowConfidence = "low_confidence"
)

// ValidationResult is the validator's verdict plus the final answer text.
type ValidationResult struct {
	FinalAnswer    string
	IsValid        bool
	IsGrounded     bool
	GroundingScore float64
	Confidence     string
	Citations      []string
	Flags          []string
}

// GroundingValidator checks that generated answers share vocabulary with the
// context they were generated from, normalizes model refusals to the
// canonical fallback, and appends citations.
//
// A low grounding score flags the answer but never rewrites it: the grounding
// corpus includes conversation history and profile text, so low overlap
// usually means conversational phrasing, not hallucination.
type GroundingValidator struct {
	minAnswerLength  int
	groundingFloor   float64
	highConfidence   float64
	mediumConfidence float64
	refusalPatterns  []*regexp.Regexp
	logger           zerolog.Logger
}

// NewGroundingValidator creates a validator from config.
func NewGroundingValidator(cfg config.ValidatorConfig, logger zerolog.Logger) *GroundingValidator {
	patterns := []string{
		`sorry.*document.*does\s+not\s+contain`,
		`sorry.*doesn.t\s+contain\s+enough`,
		`i\s+don.t\s+have\s+enough\s+information`,
		`the\s+(provided\s+)?document.*does\s+not\s+(mention|contain|include)`,
		`no\s+relevant\s+(information|data|content)\s+found`,
		`cannot\s+answer.*based\s+on.*provided`,
	}
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return &GroundingValidator{
		minAnswerLength:  cfg.MinAnswerLength,
		groundingFloor:   cfg.GroundingFloor,
		highConfidence:   cfg.HighConfidence,
		mediumConfidence: cfg.MediumConfidence,
		refusalPatterns:  compiled,
		logger:           logger.With().Str("component", "grounding_validator").Logger(),
	}
}

// Validate checks the answer against the context corpus it was generated
// from. corpus should include every context block the model saw: passages,
// history, and profile text.
func (v *GroundingValidator) Validate(answer string, corpus []string, sources []string) ValidationResult {
	if len(strings.TrimSpace(answer)) < v.minAnswerLength {
		v.logger.Warn().Msg("answer too short, returning fallback")
		return ValidationResult{
			FinalAnswer: FallbackAnswer,
			IsValid:     false,
			IsGrounded:  false,
			Confidence:  ConfidenceNone,
			Citations:   dedupeSources(sources),
			Flags:       []string{FlagEmptyAnswer},
		}
	}

	if v.isRefusal(answer) {
		// The model declining to answer is correct grounded behavior;
		// normalize its phrasing to the canonical fallback.
		return ValidationResult{
			FinalAnswer:    FallbackAnswer,
			IsValid:        true,
			IsGrounded:     true,
			GroundingScore: 1.0,
			Confidence:     ConfidenceHigh,
			Citations:      []string{},
			Flags:          []string{FlagLLMRefusal},
		}
	}

	var flags []string
	score := v.GroundingScore(answer, corpus)
	grounded := score >= v.groundingFloor
	if !grounded {
		flags = append(flags, FlagLowGrounding)
		v.logger.Warn().Float64("score", score).Msg("low grounding score, flagging but allowing answer")
	}

	var confidence string
	switch {
	case score >= v.highConfidence:
		confidence = ConfidenceHigh
	case score >= v.mediumConfidence:
		confidence = ConfidenceMedium
	default:
		confidence = ConfidenceLow
		flags = append(flags, FlagLowConfidence)
	}

	citations := dedupeSources(sources)
	finalAnswer := strings.TrimSpace(answer)
	if len(citations) > 0 {
		finalAnswer += "\n\nSources: " + strings.Join(citations, ", ")
	}

	return ValidationResult{
		FinalAnswer:    finalAnswer,
		IsValid:        true,
		IsGrounded:     grounded,
		GroundingScore: round4(score),
		Confidence:     confidence,
		Citations:      citations,
		Flags:          flags,
	}
}

// GroundingScore returns the fraction of answer content words that also
// appear somewhere in the corpus.
func (v *GroundingValidator) GroundingScore(answer string, corpus []string) float64 {
	answerWords := contentWordSet(answer)
	if len(answerWords) == 0 {
		return 0
	}

	corpusWords := make(map[string]struct{})
	for _, chunk := range corpus {
		for w := range contentWordSet(chunk) {
			corpusWords[w] = struct{}{}
		}
	}
	if len(corpusWords) == 0 {
		return 0
	}

	overlap := 0
	for w := range answerWords {
		if _, ok := corpusWords[w]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(answerWords))
}

func (v *GroundingValidator) isRefusal(answer string) bool {
	lower := strings.ToLower(strings.TrimSpace(answer))
	for _, p := range v.refusalPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// dedupeSources keeps first occurrence order and drops empties.
func dedupeSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := []string{}
	for _, src := range sources {
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an the is are was were be been being have has had do does did will would shall " +
			"should may might must can could i me my we our you your he him his she her it " +
			"its they them their what which who whom this that these those am at by for with " +
			"about against between through during before after above below to from up down in out " +
			"on off over under again further then once here there when where why how all both " +
			"each few more most other some such no nor not only own same so than too very s t " +
			"just don now also of and or but if") {
		stopWords[w] = struct{}{}
	}
}

// contentWordSet lowercases, tokenizes, and strips stop words and tokens of
// length <= 2.
func contentWordSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		if len(tok) <= 2 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
