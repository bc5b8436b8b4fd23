package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// canonicalFields are the profile attributes with first-class meaning,
// rendered in this order. Anything else is kept as a free-form extra.
var canonicalFields = []string{"name", "location", "occupation", "income", "age", "category"}

// ProfileManager validates, merges, and renders per-user attributes.
type ProfileManager struct {
	store  ports.ProfileStore
	logger zerolog.Logger
}

// NewProfileManager wires a profile store.
func NewProfileManager(store ports.ProfileStore, logger zerolog.Logger) *ProfileManager {
	return &ProfileManager{
		store:  store,
		logger: logger.With().Str("component", "profile_manager").Logger(),
	}
}

// Merge normalizes and persists extracted attributes. Invalid values are
// dropped with a log line rather than failing the merge; an empty result map
// is a no-op.
func (p *ProfileManager) Merge(ctx context.Context, userID string, attrs map[string]string) error {
	clean := make(map[string]string, len(attrs))
	for key, value := range attrs {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if key == "age" {
			if _, err := strconv.Atoi(value); err != nil {
				p.logger.Debug().Str("user_id", userID).Str("value", value).Msg("dropping non-integer age")
				continue
			}
		}
		clean[key] = value
	}
	if len(clean) == 0 {
		return nil
	}
	return p.store.UpsertFields(ctx, userID, clean)
}

// Render returns the user's profile as a personalization block, or the empty
// string when nothing is known. Canonical fields come first in a fixed order,
// then extras sorted by key. Read failures degrade to empty.
func (p *ProfileManager) Render(ctx context.Context, userID string) string {
	attrs, err := p.store.Attributes(ctx, userID)
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("profile read failed, continuing without profile")
		return ""
	}
	if len(attrs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Known user details (use to personalize the answer):\n")

	seen := make(map[string]bool, len(attrs))
	for _, field := range canonicalFields {
		if value, ok := attrs[field]; ok {
			writeAttr(&b, field, value)
			seen[field] = true
		}
	}

	extras := make([]string, 0, len(attrs))
	for key := range attrs {
		if !seen[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		writeAttr(&b, key, attrs[key])
	}

	return strings.TrimRight(b.String(), "\n")
}

// Forget removes a single attribute, reporting whether it existed.
func (p *ProfileManager) Forget(ctx context.Context, userID, key string) (bool, error) {
	return p.store.DeleteField(ctx, userID, strings.ToLower(strings.TrimSpace(key)))
}

// Clear removes every attribute for a user.
func (p *ProfileManager) Clear(ctx context.Context, userID string) (int64, error) {
	return p.store.Clear(ctx, userID)
}

func writeAttr(b *strings.Builder, key, value string) {
	b.WriteString("- ")
	b.WriteString(titleCase(key))
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
