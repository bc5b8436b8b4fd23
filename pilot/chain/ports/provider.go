package chainports

import (
	"context"
)

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System string // high-level system instructions
	User   string // the user-facing prompt body
}

// Options controls sampling and limits for a single provider call.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
}

// Completion is the provider's response.
type Completion struct {
	Text string
	Raw  any // raw provider payload for debugging/telemetry
}

// Provider is the abstraction for all text-generation backends. Both the
// query resolver and the answer generator go through this port; the core
// never talks to a model API directly.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
