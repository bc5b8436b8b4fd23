package chain

import (
	"fmt"
	"strings"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// Context section labels. The generation prompt's rules refer to these
// labels, so they must stay in sync with the system prompt text.
const (
	labelUserContext     = "[User Context]"
	labelHistory         = "[Conversation History]"
	labelDocuments       = "[Retrieved Documents]"
	sectionSeparator     = "\n\n---\n\n"
	passageSourceMissing = "unknown"
)

// ContextBuilder assembles the layered context block fed to generation:
// profile first, then conversation history, then retrieved passages. Empty
// sections are omitted entirely.
type ContextBuilder struct{}

// NewContextBuilder creates a context builder.
func NewContextBuilder() *ContextBuilder { return &ContextBuilder{} }

// Build layers the three context sections into one labelled block and also
// returns the raw chunks for grounding validation.
func (b *ContextBuilder) Build(profileContext, historyContext string, passages []ports.Passage) (string, []string) {
	var sections []string
	var corpus []string

	if s := strings.TrimSpace(profileContext); s != "" {
		sections = append(sections, labelUserContext+"\n"+s)
		corpus = append(corpus, s)
	}
	if s := strings.TrimSpace(historyContext); s != "" {
		sections = append(sections, labelHistory+"\n"+s)
		corpus = append(corpus, s)
	}
	if len(passages) > 0 {
		var docs strings.Builder
		docs.WriteString(labelDocuments)
		for i, p := range passages {
			source := p.SourceID
			if source == "" {
				source = passageSourceMissing
			}
			fmt.Fprintf(&docs, "\nDocument %d (Source: %s):\n%s", i+1, source, strings.TrimSpace(p.Text))
			if i < len(passages)-1 {
				docs.WriteString("\n")
			}
			corpus = append(corpus, p.Text)
		}
		sections = append(sections, docs.String())
	}

	return strings.Join(sections, sectionSeparator), corpus
}
