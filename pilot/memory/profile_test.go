package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// fakeProfileStore is an in-memory ProfileStore with injectable errors.
type fakeProfileStore struct {
	attrs   map[string]string
	readErr error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{attrs: make(map[string]string)}
}

func (s *fakeProfileStore) UpsertFields(ctx context.Context, userID string, fields map[string]string) error {
	for k, v := range fields {
		s.attrs[k] = v
	}
	return nil
}

func (s *fakeProfileStore) Attributes(ctx context.Context, userID string) (map[string]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.attrs, nil
}

func (s *fakeProfileStore) DeleteField(ctx context.Context, userID, key string) (bool, error) {
	if _, ok := s.attrs[key]; !ok {
		return false, nil
	}
	delete(s.attrs, key)
	return true, nil
}

func (s *fakeProfileStore) Clear(ctx context.Context, userID string) (int64, error) {
	n := int64(len(s.attrs))
	s.attrs = make(map[string]string)
	return n, nil
}

var _ ports.ProfileStore = (*fakeProfileStore)(nil)

func newProfileManager(store ports.ProfileStore) *ProfileManager {
	return NewProfileManager(store, zerolog.Nop())
}

func TestProfileManager_MergeNormalizesKeys(t *testing.T) {
	store := newFakeProfileStore()
	p := newProfileManager(store)

	err := p.Merge(context.Background(), "user-1", map[string]string{
		" Name ":    "Asha",
		"LOCATION":  "Kerala",
		"empty":     "  ",
		"":          "dropped",
		"free_form": "enjoys hiking",
	})
	require.NoError(t, err)

	assert.Equal(t, "Asha", store.attrs["name"])
	assert.Equal(t, "Kerala", store.attrs["location"])
	assert.Equal(t, "enjoys hiking", store.attrs["free_form"])
	assert.NotContains(t, store.attrs, "empty")
	assert.NotContains(t, store.attrs, "")
}

func TestProfileManager_MergeDropsInvalidAge(t *testing.T) {
	store := newFakeProfileStore()
	p := newProfileManager(store)

	require.NoError(t, p.Merge(context.Background(), "user-1", map[string]string{"age": "sixty"}))
	assert.NotContains(t, store.attrs, "age")

	require.NoError(t, p.Merge(context.Background(), "user-1", map[string]string{"age": "62"}))
	assert.Equal(t, "62", store.attrs["age"])
}

func TestProfileManager_MergeEmptyIsNoOp(t *testing.T) {
	store := newFakeProfileStore()
	p := newProfileManager(store)

	require.NoError(t, p.Merge(context.Background(), "user-1", nil))
	require.NoError(t, p.Merge(context.Background(), "user-1", map[string]string{"x": " "}))
	assert.Empty(t, store.attrs)
}

func TestProfileManager_RenderCanonicalOrderThenExtras(t *testing.T) {
	store := newFakeProfileStore()
	store.attrs = map[string]string{
		"category":   "OBC",
		"name":       "Asha",
		"zeta":       "last extra",
		"age":        "34",
		"alpha":      "first extra",
		"occupation": "teacher",
	}
	p := newProfileManager(store)

	out := p.Render(context.Background(), "user-1")
	require.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(out, "Known user details"))

	order := []string{"- Name: Asha", "- Occupation: teacher", "- Age: 34", "- Category: OBC", "- Alpha: first extra", "- Zeta: last extra"}
	last := -1
	for _, line := range order {
		idx := strings.Index(out, line)
		require.NotEqual(t, -1, idx, "missing line %q", line)
		assert.Greater(t, idx, last, "line %q out of order", line)
		last = idx
	}
}

func TestProfileManager_RenderEmptyProfile(t *testing.T) {
	p := newProfileManager(newFakeProfileStore())
	assert.Equal(t, "", p.Render(context.Background(), "user-1"))
}

func TestProfileManager_RenderReadErrorDegradesToEmpty(t *testing.T) {
	store := newFakeProfileStore()
	store.readErr = errors.New("connection reset")
	p := newProfileManager(store)
	assert.Equal(t, "", p.Render(context.Background(), "user-1"))
}

func TestProfileManager_Forget(t *testing.T) {
	store := newFakeProfileStore()
	store.attrs["location"] = "Kerala"
	p := newProfileManager(store)

	existed, err := p.Forget(context.Background(), "user-1", " Location ")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = p.Forget(context.Background(), "user-1", "location")
	require.NoError(t, err)
	assert.False(t, existed)
}
