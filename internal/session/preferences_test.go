package session

import (
	"context"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/cilicili/internal/model"
)

func TestPreferencesStorage_RoundTrip(t *testing.T) {
	app := test.NewApp()
	storage := NewPreferencesStorage(app)
	ctx := context.Background()

	loaded, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	record := model.StoredSession{Credential: "SESSDATA=x", Profile: testProfile(), LoginTime: 1700000000000}
	require.NoError(t, storage.Save(ctx, record))

	loaded, err = storage.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.Credential, loaded.Credential)
	assert.Equal(t, record.LoginTime, loaded.LoginTime)
	assert.Equal(t, *record.Profile, *loaded.Profile)

	require.NoError(t, storage.Clear(ctx))
	loaded, err = storage.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPreferencesStorage_CorruptValue(t *testing.T) {
	app := test.NewApp()
	app.Preferences().SetString(KeyLoginData, "{not json")

	storage := NewPreferencesStorage(app)
	_, err := storage.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptSession)

	restored, err := newTestStore(storage).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Empty(t, app.Preferences().String(KeyLoginData))
}
