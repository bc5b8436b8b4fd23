package chain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// OutputParser extracts structured data from model responses. Small local
// models wrap JSON in code fences, prose, or mildly broken syntax, so the
// parser peels fences, isolates the outermost object, and repairs common
// mistakes before giving up.
type OutputParser struct {
	fencePattern    *regexp.Regexp
	trailingCommas  *regexp.Regexp
	unquotedKeys    *regexp.Regexp
	resolutionShape *regexp.Regexp
}

// NewOutputParser creates a parser with default repair patterns.
func NewOutputParser() *OutputParser {
	return &OutputParser{
		fencePattern:    regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```"),
		trailingCommas:  regexp.MustCompile(`,\s*([}\]])`),
		unquotedKeys:    regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`),
		resolutionShape: regexp.MustCompile(`(?s)\{.*\}`),
	}
}

// rawResolution is the wire shape the extraction prompt asks the model for.
type rawResolution struct {
	Intent      string            `json:"intent"`
	SearchQuery string            `json:"search_query"`
	IsFollowup  bool              `json:"is_followup"`
	Attributes  map[string]string `json:"attributes"`
}

// ParseResolution extracts a Resolution from model output.
func (p *OutputParser) ParseResolution(text string) (Resolution, error) {
	payload, err := p.ExtractJSON(text)
	if err != nil {
		return Resolution{}, err
	}

	var raw rawResolution
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Resolution{}, fmt.Errorf("decode resolution: %w", err)
	}

	attrs := raw.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return Resolution{
		Intent:      strings.ToLower(strings.TrimSpace(raw.Intent)),
		SearchQuery: strings.TrimSpace(raw.SearchQuery),
		IsFollowup:  raw.IsFollowup,
		Attributes:  attrs,
	}, nil
}

// ExtractJSON isolates and repairs the outermost JSON object in text.
func (p *OutputParser) ExtractJSON(text string) (json.RawMessage, error) {
	if m := p.fencePattern.FindStringSubmatch(text); len(m) == 2 {
		text = m[1]
	}

	match := p.resolutionShape.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	if json.Valid([]byte(match)) {
		return json.RawMessage(match), nil
	}

	fixed := p.fixJSON(match)
	if !json.Valid([]byte(fixed)) {
		return nil, fmt.Errorf("invalid JSON in response")
	}
	return json.RawMessage(fixed), nil
}

// fixJSON repairs the failure modes small models actually produce: trailing
// commas, unquoted keys, and single-quoted strings.
func (p *OutputParser) fixJSON(jsonStr string) string {
	jsonStr = p.trailingCommas.ReplaceAllString(jsonStr, "$1")
	jsonStr = p.unquotedKeys.ReplaceAllString(jsonStr, `$1"$2":`)
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")
	return jsonStr
}
