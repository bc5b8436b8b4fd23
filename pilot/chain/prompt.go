package chain

import (
	"strings"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

const answerSystemPrompt = `You are PolicyPilot, a document-based policy assistant.

RULES, follow them strictly:
1. Base your answers primarily on the [Retrieved Documents] provided below.
2. If [User Context] is present, PERSONALIZE your answer to the user's
   specific situation (their location, occupation, income, category, age).
   Address the user by name if known. Every policy fact you state must
   still come from the [Retrieved Documents].
3. If [Conversation History] is present, use it to resolve follow-up
   questions. When the user says "tell me more", "what about eligibility?",
   "explain that", or uses pronouns like "it" or "that", look at the
   previous exchanges to understand what they refer to. You MAY use
   information from your previous answers for continuity.
4. For greetings, clarifications, or conversational messages, respond
   naturally and helpfully. You do NOT need to cite documents for these.
5. When quoting a policy or rule from documents, mention the source document
   name if known.
6. ONLY if the user asks a specific policy question AND neither the
   [Retrieved Documents] nor the [Conversation History] contain relevant
   information, respond with:
   "Sorry, this document does not contain enough information to answer that."
7. Do NOT fabricate policy details that are not in the provided context.
8. Keep answers concise, clear, and well-structured.`

// PromptBuilder assembles the final generation prompt from the layered
// context block and the user's question.
type PromptBuilder struct{}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build produces the provider input for answer generation. The question here
// is the user's original phrasing: the rewritten search query drives
// retrieval only.
func (b *PromptBuilder) Build(question, contextBlock string) ports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	var user strings.Builder
	user.WriteString("Context:\n")
	user.WriteString(norm(contextBlock))
	user.WriteString("\n\nUser Question:\n")
	user.WriteString(norm(question))
	user.WriteString("\n\nAnswer:")

	return ports.PromptInput{
		System: answerSystemPrompt,
		User:   user.String(),
	}
}
