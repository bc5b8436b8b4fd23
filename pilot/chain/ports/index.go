package chainports

import "context"

// Passage is a chunk of document content returned by the index. RankScore is
// undefined until the reranker assigns it.
type Passage struct {
	Text      string
	SourceID  string
	RankScore float64
}

// DocumentIndex is the retrieval boundary. Implementations wrap whatever
// vector/lexical index the deployment uses; the core treats zero results as a
// valid outcome, not an error.
type DocumentIndex interface {
	Retrieve(ctx context.Context, query, userID string, topK int) ([]Passage, error)
}
