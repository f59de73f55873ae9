package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kioskd/kioskd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 5 * time.Second

func nextDocument(t *testing.T, events <-chan DocumentEvent) DocumentEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for document event")
		return DocumentEvent{}
	}
}

func nextCollection(t *testing.T, events <-chan CollectionEvent) CollectionEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for collection event")
		return CollectionEvent{}
	}
}

func TestFileDocumentLifecycle(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remoteBaseUrl: https://a.example.com\nblacklist: [/profile]\n"), 0o600))

	svc, err := NewFile(FileOptions{Root: root, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := svc.SubscribeDocument(ctx, "config.yaml")
	require.NoError(t, err)

	ev := nextDocument(t, events)
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Config)
	assert.Equal(t, "https://a.example.com", ev.Config.RemoteBaseURL)
	assert.Equal(t, []string{"/profile"}, ev.Config.Blacklist)

	require.NoError(t, os.WriteFile(path, []byte(`{"remoteBaseUrl":"https://b.example.com"}`), 0o600))
	ev = nextDocument(t, events)
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Config)
	assert.Equal(t, "https://b.example.com", ev.Config.RemoteBaseURL)

	require.NoError(t, os.Remove(path))
	ev = nextDocument(t, events)
	assert.NoError(t, ev.Err)
	assert.Nil(t, ev.Config)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, eventTimeout, 10*time.Millisecond)
}

func TestFileDocumentMissingAtStart(t *testing.T) {
	svc, err := NewFile(FileOptions{Root: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := svc.SubscribeDocument(ctx, "absent.yaml")
	require.NoError(t, err)

	ev := nextDocument(t, events)
	assert.NoError(t, ev.Err)
	assert.Nil(t, ev.Config)
}

func TestFileCollection(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- user: operator\n  pass: \"1234\"\n"), 0o600))

	svc, err := NewFile(FileOptions{Root: root, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := svc.SubscribeCollection(ctx, "users.yaml")
	require.NoError(t, err)

	ev := nextCollection(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, models.InternalUserSet{{User: "operator", Pass: "1234"}}, ev.Users)

	// Atomic replace through rename
	tmp := filepath.Join(root, ".users.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`[{"user":"admin","pass":"x"},{"user":"operator","pass":"1234"}]`), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	ev = nextCollection(t, events)
	require.NoError(t, ev.Err)
	assert.Len(t, ev.Users, 2)
	assert.Equal(t, "admin", ev.Users[0].User)
}

func TestFileWatchMissingDirectory(t *testing.T) {
	svc, err := NewFile(FileOptions{Root: filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)

	_, err = svc.SubscribeDocument(context.Background(), "config.yaml")
	assert.Error(t, err)
}
