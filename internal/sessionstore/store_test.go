package sessionstore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, "state/session_state.json", zap.NewNop()), fs
}

func sampleState() *schemas.SessionState {
	return &schemas.SessionState{
		Cookies: []schemas.Cookie{
			{Name: "wt2", Value: "abc123", Domain: ".zhipin.com", Path: "/", HTTPOnly: true, Secure: true},
			{Name: "geek_uid", Value: "42", Domain: "www.zhipin.com"},
		},
		Origins: []schemas.OriginState{
			{
				Origin: "https://www.zhipin.com",
				LocalStorage: []schemas.StorageItem{
					{Key: "zp_token", Value: "tok-1"},
					{Key: "user_profile", Value: `{"uid":42}`},
				},
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	saved := sampleState()

	require.NoError(t, store.Save(saved))
	loaded := store.Load()

	require.NotNil(t, loaded)
	assert.Equal(t, saved.Cookies, loaded.Cookies)
	assert.Equal(t, saved.Origins, loaded.Origins)
	assert.False(t, loaded.SavedAt.IsZero(), "save must stamp SavedAt")
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Nil(t, store.Load())
}

func TestLoadCorruptFileReturnsNil(t *testing.T) {
	store, fs := newTestStore(t)
	require.NoError(t, afero.WriteFile(fs, "state/session_state.json", []byte("{not json"), 0o600))

	assert.Nil(t, store.Load(), "undecodable state must be treated as absent, not fatal")
}

func TestSaveOverwritesAtomically(t *testing.T) {
	store, fs := newTestStore(t)
	require.NoError(t, store.Save(sampleState()))

	second := &schemas.SessionState{
		Cookies: []schemas.Cookie{{Name: "bst", Value: "new", Domain: ".zhipin.com"}},
	}
	require.NoError(t, store.Save(second))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "bst", loaded.Cookies[0].Name)

	// The temp file must not survive a successful commit.
	exists, err := afero.Exists(fs, "state/session_state.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveNilStateIsAnError(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.Save(nil))
}

func TestStorageItemOrderSurvivesRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	state := &schemas.SessionState{
		Origins: []schemas.OriginState{{
			Origin: "https://example.test",
			LocalStorage: []schemas.StorageItem{
				{Key: "z", Value: "1"},
				{Key: "a", Value: "2"},
				{Key: "m", Value: "3"},
			},
		}},
	}
	require.NoError(t, store.Save(state))

	loaded := store.Load()
	require.NotNil(t, loaded)
	require.Len(t, loaded.Origins, 1)
	keys := make([]string, 0, 3)
	for _, it := range loaded.Origins[0].LocalStorage {
		keys = append(keys, it.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)
}

func TestEmptyReportsRestorableData(t *testing.T) {
	var nilState *schemas.SessionState
	assert.True(t, nilState.Empty())
	assert.True(t, (&schemas.SessionState{}).Empty())
	assert.False(t, sampleState().Empty())
}
