package fullsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kioskd/kioskd/internal/browser/browsertest"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var remote = models.RemoteConfig{
	RemoteBaseURL: "https://app.example.com",
	Blacklist:     []string{"/profile", "/billing"},
}

type harness struct {
	launcher *browsertest.Launcher
	registry *registry.Registry
	done     chan error
	cancel   context.CancelFunc
}

func start(t *testing.T, cfg models.RemoteConfig, setup func(b *browsertest.Browser)) *harness {
	t.Helper()

	h := &harness{
		launcher: &browsertest.Launcher{Setup: setup},
		registry: registry.New(nil),
		done:     make(chan error, 1),
	}

	sup := New(h.launcher, h.registry, nil, Options{ProfileDir: "/var/lib/kioskd/user_data", Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- sup.Run(ctx, cfg) }()

	t.Cleanup(cancel)
	return h
}

// dispatchPage waits for the session to land on the dispatch page.
func (h *harness) dispatchPage(t *testing.T) (*browsertest.Browser, *browsertest.Page) {
	t.Helper()

	var (
		b    *browsertest.Browser
		page *browsertest.Page
	)
	require.Eventually(t, func() bool {
		launched := h.launcher.Launched()
		if len(launched) == 0 {
			return false
		}
		b = launched[0]
		for _, p := range b.LivePages() {
			if p.CurrentURL() == "https://app.example.com/dispatch" {
				page = p
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	return b, page
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("full session did not end")
		return nil
	}
}

func (h *harness) assertRunning(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		t.Fatalf("full session ended early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSessionEndsWhenLastPageCloses(t *testing.T) {
	h := start(t, remote, nil)
	b, page := h.dispatchPage(t)

	assert.True(t, b.Opts.Maximized)
	assert.False(t, b.Opts.Kiosk)
	assert.True(t, page.Intercepted())

	second := b.OpenPage("https://app.example.com/orders")
	require.Eventually(t, second.Intercepted, time.Second, 5*time.Millisecond)

	require.NoError(t, page.Close())
	h.assertRunning(t)

	require.NoError(t, second.Close())
	require.NoError(t, h.wait(t))
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, h.registry.Len())
}

func TestSessionEndsOnDisconnect(t *testing.T) {
	h := start(t, remote, nil)
	b, _ := h.dispatchPage(t)

	b.Disconnect()
	assert.NoError(t, h.wait(t))
}

func TestEnforcerAttachedToEveryPage(t *testing.T) {
	h := start(t, remote, func(b *browsertest.Browser) {
		// Restored tab from the previous session
		b.OpenPage("https://app.example.com/billing/invoices")
	})
	b, page := h.dispatchPage(t)

	for _, p := range b.LivePages() {
		assert.NotContains(t, p.CurrentURL(), "/billing")
	}

	assert.True(t, page.Request("https://app.example.com/profile"))
	assert.False(t, page.Request("https://app.example.com/api/jobs"))

	popup := b.OpenPage("https://app.example.com/profile")
	require.Eventually(t, popup.IsClosed, time.Second, 5*time.Millisecond)

	tab := b.OpenPage("https://app.example.com/orders")
	require.Eventually(t, tab.Intercepted, time.Second, 5*time.Millisecond)
	tab.FrameNavigated("https://app.example.com/billing")
	assert.True(t, tab.IsClosed())

	assert.False(t, page.IsClosed())
	h.assertRunning(t)
}

func TestEmptyBlacklistBlocksProfile(t *testing.T) {
	h := start(t, models.RemoteConfig{RemoteBaseURL: "https://app.example.com"}, nil)
	_, page := h.dispatchPage(t)

	assert.True(t, page.Request("https://app.example.com/profile"))
	assert.False(t, page.Request("https://app.example.com/billing"))
}

func TestSessionEndSignalledOnce(t *testing.T) {
	s := newSession(nil, nil)

	for range 5 {
		go s.end("last page closed")
	}
	s.end("browser disconnected")

	<-s.ended
	assert.NotEmpty(t, s.reason)
}

func TestSimultaneousPageClosesEndOnce(t *testing.T) {
	h := start(t, remote, nil)
	b, page := h.dispatchPage(t)

	second := b.OpenPage("https://app.example.com/orders")
	require.Eventually(t, second.Intercepted, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for _, p := range []*browsertest.Page{page, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Close())
		}()
	}
	wg.Wait()

	require.NoError(t, h.wait(t))
	assert.Equal(t, 0, h.registry.Len())

	select {
	case err := <-h.done:
		t.Fatalf("full session returned twice: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPopupFirstRequestFiltered(t *testing.T) {
	h := start(t, remote, nil)
	b, _ := h.dispatchPage(t)
	assert.True(t, b.Intercepted())

	popup := b.OpenPage("about:blank")
	assert.True(t, popup.Request("https://app.example.com/billing/export"))
	assert.False(t, popup.IsClosed())
}

func TestNavigationFailure(t *testing.T) {
	h := start(t, models.RemoteConfig{
		RemoteBaseURL: "https://app.example.com",
		Blacklist:     []string{"/dispatch"},
	}, nil)

	err := h.wait(t)
	assert.Error(t, err)

	launched := h.launcher.Launched()
	require.Len(t, launched, 1)
	assert.True(t, launched[0].IsClosed())
}
