package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu      sync.Mutex
	status  int
	body    string
	etag    string
	hits    int
	lastTag string
}

func (f *fakeRemote) set(status int, body, etag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body, f.etag = status, body, etag
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits++
	f.lastTag = r.Header.Get("If-None-Match")

	if len(f.etag) > 0 && f.lastTag == f.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if len(f.etag) > 0 {
		w.Header().Set("ETag", f.etag)
	}
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func TestHTTPDocumentPolling(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(http.StatusOK, `{"remoteBaseUrl":"https://a.example.com","blacklist":["/profile"]}`, `"v1"`)

	server := httptest.NewServer(remote)
	defer server.Close()

	svc, err := NewHTTP(HTTPOptions{Endpoint: server.URL, Interval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := svc.SubscribeDocument(ctx, "/kiosks/lobby")
	require.NoError(t, err)

	ev := nextDocument(t, events)
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Config)
	assert.Equal(t, "https://a.example.com", ev.Config.RemoteBaseURL)

	// Unchanged polls are answered with 304 and produce nothing
	require.Eventually(t, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return remote.hits >= 3 && remote.lastTag == `"v1"`
	}, eventTimeout, 10*time.Millisecond)

	remote.set(http.StatusNotFound, "", "")
	ev = nextDocument(t, events)
	assert.NoError(t, ev.Err)
	assert.Nil(t, ev.Config)

	remote.set(http.StatusOK, `{"remoteBaseUrl":"https://b.example.com"}`, `"v2"`)
	ev = nextDocument(t, events)
	require.NotNil(t, ev.Config)
	assert.Equal(t, "https://b.example.com", ev.Config.RemoteBaseURL)
}

func TestHTTPCollectionPolling(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(http.StatusOK, `[{"user":"operator","pass":"1234"}]`, "")

	server := httptest.NewServer(remote)
	defer server.Close()

	svc, err := NewHTTP(HTTPOptions{Endpoint: server.URL, Interval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := svc.SubscribeCollection(ctx, "/kiosks/lobby/users")
	require.NoError(t, err)

	ev := nextCollection(t, events)
	require.NoError(t, ev.Err)
	require.Len(t, ev.Users, 1)
	assert.Equal(t, "operator", ev.Users[0].User)
}

func TestHTTPRequiresEndpoint(t *testing.T) {
	_, err := NewHTTP(HTTPOptions{})
	assert.Error(t, err)
}
