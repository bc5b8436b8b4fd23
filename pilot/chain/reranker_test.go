package chain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
)

func newReranker(topN int) *KeywordReranker {
	return NewKeywordReranker(config.RerankerConfig{
		TopN:            topN,
		OverlapWeight:   0.6,
		FrequencyWeight: 0.4,
	})
}

func TestKeywordReranker_EmptyInput(t *testing.T) {
	r := newReranker(5)
	out := r.Rerank("any query", nil)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}

func TestKeywordReranker_SmallSetPassesThrough(t *testing.T) {
	r := newReranker(5)
	passages := []ports.Passage{
		{Text: "unrelated text about weather", SourceID: "a"},
		{Text: "income tax slab rates", SourceID: "b"},
		{Text: "more filler content", SourceID: "c"},
	}

	out := r.Rerank("income tax rates", passages)

	require.Len(t, out, 3)
	for i, p := range out {
		assert.Equal(t, passages[i].SourceID, p.SourceID, "order must be preserved when nothing is cut")
		assert.Equal(t, 1.0, p.RankScore, "small sets get a neutral score")
	}
}

func TestKeywordReranker_SortsAndTruncates(t *testing.T) {
	r := newReranker(2)
	passages := []ports.Passage{
		{Text: "completely unrelated gardening tips and tricks", SourceID: "noise-1"},
		{Text: "pension scheme eligibility criteria and pension payout rules", SourceID: "hit-1"},
		{Text: "recipes for the monsoon season", SourceID: "noise-2"},
		{Text: "pension eligibility for senior citizens", SourceID: "hit-2"},
	}

	out := r.Rerank("pension eligibility", passages)

	require.Len(t, out, 2)
	sources := []string{out[0].SourceID, out[1].SourceID}
	assert.ElementsMatch(t, []string{"hit-1", "hit-2"}, sources)
	assert.GreaterOrEqual(t, out[0].RankScore, out[1].RankScore)
}

func TestKeywordReranker_TiesKeepRetrievalOrder(t *testing.T) {
	r := newReranker(2)
	passages := []ports.Passage{
		{Text: "identical scoring text", SourceID: "first"},
		{Text: "identical scoring text", SourceID: "second"},
		{Text: "identical scoring text", SourceID: "third"},
	}

	out := r.Rerank("identical scoring", passages)

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].SourceID)
	assert.Equal(t, "second", out[1].SourceID)
}

func TestKeywordReranker_InputNotMutated(t *testing.T) {
	r := newReranker(1)
	passages := []ports.Passage{
		{Text: "alpha beta", SourceID: "a"},
		{Text: "query terms query terms", SourceID: "b"},
	}

	_ = r.Rerank("query terms", passages)

	assert.Equal(t, "a", passages[0].SourceID, "caller's slice order must survive reranking")
	assert.Zero(t, passages[0].RankScore)
}

func TestKeywordReranker_ScoreProperties(t *testing.T) {
	r := newReranker(5)

	assert.Zero(t, r.Score("", "some passage"))
	assert.Zero(t, r.Score("some query", ""))

	perfect := r.Score("income tax", "income tax")
	assert.InDelta(t, 1.0, perfect, 1e-9, "identical token sets score the weight sum")

	partial := r.Score("income tax rules", "income details for everyone")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, perfect)
}

func TestKeywordReranker_CaseAndPunctuationInsensitive(t *testing.T) {
	r := newReranker(5)
	a := r.Score("Income-Tax!", "income tax")
	b := r.Score("income tax", "income tax")
	assert.InDelta(t, b, a, 1e-9)
}

func BenchmarkKeywordReranker_Rerank(b *testing.B) {
	r := newReranker(5)
	passages := make([]ports.Passage, 50)
	for i := range passages {
		passages[i] = ports.Passage{
			Text:     fmt.Sprintf("passage %d about various policy schemes and eligibility rules number %d", i, i),
			SourceID: fmt.Sprintf("doc-%d", i),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Rerank("policy scheme eligibility", passages)
	}
}
