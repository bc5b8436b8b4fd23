package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Values(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "file:policypilot.db", cfg.Database.URL)
	assert.Equal(t, 1024, cfg.LLM.MaxNewTokens)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-6)
	assert.InDelta(t, 0.9, cfg.LLM.TopP, 1e-6)
	assert.Equal(t, 5, cfg.LLM.TopK)
	assert.Equal(t, 4, cfg.LLM.RateLimitCapacity)
	assert.Equal(t, 5, cfg.History.VerbatimTurns)
	assert.Equal(t, 8, cfg.History.SummaryThreshold)
	assert.Equal(t, 5, cfg.Reranker.TopN)
	assert.InDelta(t, 0.6, cfg.Reranker.OverlapWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.Reranker.FrequencyWeight, 1e-9)
	assert.Equal(t, 10, cfg.Validator.MinAnswerLength)
	assert.InDelta(t, 0.10, cfg.Validator.GroundingFloor, 1e-9)

	assert.NoError(t, cfg.Validate())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.Database.URL = "" }},
		{"missing model", func(c *Config) { c.LLM.Model = "" }},
		{"non-positive top_k", func(c *Config) { c.LLM.TopK = 0 }},
		{"non-positive verbatim turns", func(c *Config) { c.History.VerbatimTurns = 0 }},
		{"threshold below verbatim", func(c *Config) { c.History.SummaryThreshold = 2 }},
		{"non-positive top_n", func(c *Config) { c.Reranker.TopN = -1 }},
		{"grounding floor out of range", func(c *Config) { c.Validator.GroundingFloor = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHistoryFetchLimit(t *testing.T) {
	cfg := Default()
	// 3x verbatim (15) beats threshold+1 (9).
	assert.Equal(t, 15, cfg.HistoryFetchLimit())

	cfg.History.VerbatimTurns = 2
	cfg.History.SummaryThreshold = 8
	// threshold+1 (9) beats 3x verbatim (6).
	assert.Equal(t, 9, cfg.HistoryFetchLimit())

	cfg.History.FetchLimit = 42
	assert.Equal(t, 42, cfg.HistoryFetchLimit())
}
