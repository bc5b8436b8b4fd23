package chain

import (
	"sort"
	"strings"
	"unicode"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
)

// Reranker reorders retrieved passages by relevance to the query.
type Reranker interface {
	Rerank(query string, passages []ports.Passage) []ports.Passage
}

// PassageScorer scores a single passage against a query, higher is better.
type PassageScorer interface {
	Score(query, passage string) float64
}

// KeywordReranker is a deterministic lexical reranker. It combines token
// overlap (how much of the query the passage covers) with term frequency
// (how often query terms recur in the passage).
type KeywordReranker struct {
	topN            int
	overlapWeight   float64
	frequencyWeight float64
}

// NewKeywordReranker creates a reranker from config.
func NewKeywordReranker(cfg config.RerankerConfig) *KeywordReranker {
	return &KeywordReranker{
		topN:            cfg.TopN,
		overlapWeight:   cfg.OverlapWeight,
		frequencyWeight: cfg.FrequencyWeight,
	}
}

// Rerank scores, sorts, and truncates passages.
//
// When the candidate set already fits within topN there is nothing to cut, so
// every passage passes through in its original order with a neutral score.
// Ties keep retrieval order (stable sort).
func (r *KeywordReranker) Rerank(query string, passages []ports.Passage) []ports.Passage {
	if len(passages) == 0 {
		return []ports.Passage{}
	}

	out := make([]ports.Passage, len(passages))
	copy(out, passages)

	if len(out) <= r.topN {
		for i := range out {
			out[i].RankScore = 1.0
		}
		return out
	}

	for i := range out {
		out[i].RankScore = r.Score(query, out[i].Text)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RankScore > out[j].RankScore
	})

	return out[:r.topN]
}

// Score combines token overlap and term frequency into one relevance value.
func (r *KeywordReranker) Score(query, passage string) float64 {
	queryTokens := tokenize(query)
	passageTokens := tokenize(passage)
	if len(queryTokens) == 0 || len(passageTokens) == 0 {
		return 0
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}
	passageSet := make(map[string]struct{}, len(passageTokens))
	passageCounts := make(map[string]int, len(passageTokens))
	for _, t := range passageTokens {
		passageSet[t] = struct{}{}
		passageCounts[t]++
	}

	// Jaccard overlap between the two token sets.
	intersection := 0
	for t := range querySet {
		if _, ok := passageSet[t]; ok {
			intersection++
		}
	}
	union := len(querySet) + len(passageSet) - intersection
	overlap := float64(intersection) / float64(union)

	// Query-term frequency, normalized by passage length.
	hits := 0
	for _, t := range passageTokens {
		if _, ok := querySet[t]; ok {
			hits++
		}
	}
	frequency := float64(hits) / float64(len(passageTokens))

	return r.overlapWeight*overlap + r.frequencyWeight*frequency
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Ensure KeywordReranker implements both interfaces.
var (
	_ Reranker      = (*KeywordReranker)(nil)
	_ PassageScorer = (*KeywordReranker)(nil)
)
