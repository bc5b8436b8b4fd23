package chain

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/policypilot/policypilot/pilot/config"
)

func newValidator() *GroundingValidator {
	return NewGroundingValidator(config.ValidatorConfig{
		MinAnswerLength:  10,
		GroundingFloor:   0.10,
		HighConfidence:   0.40,
		MediumConfidence: 0.25,
	}, zerolog.Nop())
}

func TestGroundingValidator_ShortAnswerFallsBack(t *testing.T) {
	v := newValidator()

	for _, answer := range []string{"", "   ", "ok", "yes."} {
		result := v.Validate(answer, []string{"some context"}, []string{"doc.pdf"})
		assert.Equal(t, FallbackAnswer, result.FinalAnswer)
		assert.False(t, result.IsValid)
		assert.False(t, result.IsGrounded)
		assert.Equal(t, ConfidenceNone, result.Confidence)
		assert.Equal(t, []string{FlagEmptyAnswer}, result.Flags)
	}
}

func TestGroundingValidator_RefusalIsGroundedBehavior(t *testing.T) {
	v := newValidator()

	refusals := []string{
		"Sorry, this document does not contain that information.",
		"sorry, it doesn't contain enough details to answer.",
		"I don't have enough information to answer this question.",
		"The provided document does not mention pension rules.",
		"No relevant information found in the documents.",
		"I cannot answer that based on the provided context.",
	}
	for _, answer := range refusals {
		result := v.Validate(answer, []string{"totally unrelated corpus text"}, []string{"doc.pdf"})
		assert.Equal(t, FallbackAnswer, result.FinalAnswer, "refusal %q should normalize", answer)
		assert.True(t, result.IsValid)
		assert.True(t, result.IsGrounded)
		assert.Equal(t, 1.0, result.GroundingScore)
		assert.Equal(t, ConfidenceHigh, result.Confidence)
		assert.Equal(t, []string{FlagLLMRefusal}, result.Flags)
		assert.Empty(t, result.Citations, "refusals carry no citations")
	}
}

func TestGroundingValidator_GroundedAnswerGetsCitations(t *testing.T) {
	v := newValidator()
	corpus := []string{"The pension scheme pays 3000 rupees monthly to citizens above age 60."}
	answer := "The pension scheme pays 3000 rupees monthly once you are above 60."

	result := v.Validate(answer, corpus, []string{"pension.pdf", "pension.pdf", "rules.pdf", ""})

	assert.True(t, result.IsValid)
	assert.True(t, result.IsGrounded)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Equal(t, []string{"pension.pdf", "rules.pdf"}, result.Citations,
		"citations dedupe by first occurrence and drop empties")
	assert.True(t, strings.HasSuffix(result.FinalAnswer, "\n\nSources: pension.pdf, rules.pdf"))
	assert.Empty(t, result.Flags)
}

func TestGroundingValidator_LowGroundingFlagsButKeepsAnswer(t *testing.T) {
	v := newValidator()
	corpus := []string{"completely different vocabulary about agriculture irrigation canals"}
	answer := "Quantum computing leverages superposition and entanglement for parallel computation speedups."

	result := v.Validate(answer, corpus, nil)

	assert.True(t, result.IsValid)
	assert.False(t, result.IsGrounded)
	assert.Contains(t, result.Flags, FlagLowGrounding)
	assert.Contains(t, result.Flags, FlagLowConfidence)
	assert.Equal(t, ConfidenceLow, result.Confidence)
	assert.Contains(t, result.FinalAnswer, "Quantum computing", "low grounding never rewrites the answer")
}

func TestGroundingValidator_ConfidenceTiers(t *testing.T) {
	v := newValidator()

	cases := []struct {
		name       string
		answer     string
		corpus     []string
		confidence string
	}{
		{
			name:       "high overlap",
			answer:     "housing subsidy requires income proof",
			corpus:     []string{"the housing subsidy scheme requires income proof documents"},
			confidence: ConfidenceHigh,
		},
		{
			name:       "medium overlap",
			answer:     "housing subsidy needs verified salary slips plus bank statements annually",
			corpus:     []string{"housing subsidy salary"},
			confidence: ConfidenceMedium,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.answer, tc.corpus, nil)
			assert.Equal(t, tc.confidence, result.Confidence)
		})
	}
}

func TestGroundingValidator_ScoreBounds(t *testing.T) {
	v := newValidator()

	inputs := []struct{ answer, chunk string }{
		{"pension scheme details explained thoroughly", "pension scheme details explained thoroughly"},
		{"pension scheme details", "unrelated gardening content"},
		{"the a an of", "anything"},
		{"", "anything"},
	}
	for _, in := range inputs {
		score := v.GroundingScore(in.answer, []string{in.chunk})
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}

	assert.Equal(t, 1.0, v.GroundingScore("pension scheme", []string{"pension scheme rules"}))
	assert.Zero(t, v.GroundingScore("anything here", nil), "empty corpus scores zero")
	assert.Zero(t, v.GroundingScore("of the an", []string{"real content words"}),
		"answers made of stop words score zero")
}

func TestGroundingValidator_CorpusIncludesAllSections(t *testing.T) {
	v := newValidator()
	// The answer leans on history phrasing, not on any document chunk.
	corpus := []string{
		"document chunk about tax slabs",
		"Recent conversation:\nUser: what about my previous subsidy application status\nAssistant: your subsidy application was approved last month",
	}
	answer := "As mentioned, your subsidy application was approved last month."

	result := v.Validate(answer, corpus, nil)
	assert.True(t, result.IsGrounded,
		"history text in the corpus must count toward grounding")
}
