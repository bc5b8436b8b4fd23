package chainports

import "context"

// ProfileStore persists per-user attributes extracted from conversation.
// Values are stored as strings; interpretation (e.g. age as an integer) is
// the ProfileManager's concern.
type ProfileStore interface {
	// UpsertFields creates or updates the given attribute fields.
	UpsertFields(ctx context.Context, userID string, fields map[string]string) error
	// Attributes returns every known attribute for the user.
	Attributes(ctx context.Context, userID string) (map[string]string, error)
	// DeleteField removes a single attribute, reporting whether it existed.
	DeleteField(ctx context.Context, userID, key string) (bool, error)
	// Clear removes all attributes for a user.
	Clear(ctx context.Context, userID string) (int64, error)
}
