package watch

import (
	"context"
	"testing"

	"github.com/kioskd/kioskd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Options{Backend: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewFirestoreRequiresCredential(t *testing.T) {
	_, err := New(context.Background(), Options{Backend: BackendFirestore}, nil)
	assert.Error(t, err)
	assert.True(t, Options{Backend: "Firestore"}.RequiresCredential())
	assert.False(t, Options{Backend: BackendFile}.RequiresCredential())
}

func TestDecodeConfigMalformed(t *testing.T) {
	_, err := decodeConfig([]byte(`{"remoteBaseUrl": 42}`))
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestDecodeUsersDropsIncompleteEntries(t *testing.T) {
	users, err := decodeUsers([]byte(`[{"user":"operator","pass":"1234"},{"user":"ghost"},{"pass":"x"}]`))
	require.NoError(t, err)
	assert.Equal(t, models.InternalUserSet{{User: "operator", Pass: "1234"}}, users)
}

func TestMemoryDeliversInOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.PublishDocument("kiosks/lobby", &models.RemoteConfig{RemoteBaseURL: "https://a"})
	m.PublishDocument("kiosks/lobby", nil)

	docs, err := m.SubscribeDocument(ctx, "kiosks/lobby")
	require.NoError(t, err)

	first := <-docs
	second := <-docs
	require.NotNil(t, first.Config)
	assert.Equal(t, "https://a", first.Config.RemoteBaseURL)
	assert.Nil(t, second.Config)
	assert.NoError(t, second.Err)
}

func TestMemoryCloseStreamsBeforeSubscribe(t *testing.T) {
	m := NewMemory()
	m.CloseStreams()

	docs, err := m.SubscribeDocument(context.Background(), "kiosks/lobby")
	require.NoError(t, err)
	users, err := m.SubscribeCollection(context.Background(), "kiosks/lobby/users")
	require.NoError(t, err)

	_, ok := <-docs
	assert.False(t, ok)
	_, ok = <-users
	assert.False(t, ok)
}
