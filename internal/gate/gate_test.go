package gate

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/kioskd/kioskd/internal/browser/browsertest"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticUsers models.InternalUserSet

func (s staticUsers) Verify(user, pass string) bool {
	return models.InternalUserSet(s).Match(user, pass)
}

func startGate(t *testing.T, users Verifier) (*browsertest.Launcher, *registry.Registry, <-chan error, context.CancelFunc) {
	t.Helper()

	launcher := &browsertest.Launcher{}
	reg := registry.New(nil)
	g := New(launcher, reg, users, nil, Options{ProfileDir: "/var/lib/kioskd/user_data", Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	return launcher, reg, done, cancel
}

// gatePage waits until the form is shown with both bindings exposed.
func gatePage(t *testing.T, launcher *browsertest.Launcher) (*browsertest.Browser, *browsertest.Page) {
	t.Helper()

	var (
		b    *browsertest.Browser
		page *browsertest.Page
	)
	require.Eventually(t, func() bool {
		launched := launcher.Launched()
		if len(launched) == 0 {
			return false
		}
		b = launched[0]
		pages := b.LivePages()
		if len(pages) == 0 {
			return false
		}
		page = pages[0]
		return strings.HasPrefix(page.CurrentURL(), "data:text/html")
	}, 2*time.Second, 5*time.Millisecond)

	return b, page
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not return")
		return nil
	}
}

func TestGatePassesOnValidCredentials(t *testing.T) {
	users := staticUsers{{User: "operator", Pass: "1234"}}
	launcher, reg, done, cancel := startGate(t, users)
	defer cancel()

	b, page := gatePage(t, launcher)
	assert.True(t, b.Opts.Kiosk)
	assert.False(t, b.Opts.Headless)

	ok, err := page.Call(VerifyBinding, map[string]string{"user": "operator", "pass": "wrong"})
	require.NoError(t, err)
	assert.Equal(t, false, ok)

	ok, err = page.Call(VerifyBinding, map[string]string{"user": "operator", "pass": "1234"})
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	_, err = page.Call(SignalBinding, map[string]string{})
	require.NoError(t, err)

	require.NoError(t, waitResult(t, done))
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, reg.Len())
}

func TestGateIgnoresUnverifiedSignal(t *testing.T) {
	launcher, _, done, cancel := startGate(t, staticUsers{{User: "operator", Pass: "1234"}})

	_, page := gatePage(t, launcher)
	_, err := page.Call(SignalBinding, map[string]string{})
	require.NoError(t, err)

	select {
	case err := <-done:
		t.Fatalf("gate returned without a verified login: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, waitResult(t, done), context.Canceled)
}

func TestGateClosesExtraTabs(t *testing.T) {
	launcher, _, done, cancel := startGate(t, staticUsers{{User: "operator", Pass: "1234"}})
	defer cancel()

	b, page := gatePage(t, launcher)

	extra := b.OpenPage("https://example.com")
	require.Eventually(t, extra.IsClosed, time.Second, 5*time.Millisecond)
	assert.False(t, page.IsClosed())
	assert.Equal(t, 1, b.PageCount())

	cancel()
	waitResult(t, done)
}

func TestGateFailsWhenBrowserDisconnects(t *testing.T) {
	launcher, _, done, cancel := startGate(t, staticUsers{{User: "operator", Pass: "1234"}})
	defer cancel()

	b, _ := gatePage(t, launcher)
	b.Disconnect()

	assert.ErrorIs(t, waitResult(t, done), ErrGateClosed)
}

func TestFormURLIsSelfContained(t *testing.T) {
	url, err := FormURL(300 * time.Millisecond)
	require.NoError(t, err)

	prefix := "data:text/html;charset=utf-8;base64,"
	require.True(t, strings.HasPrefix(url, prefix))

	html, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)

	body := string(html)
	assert.Contains(t, body, "window.verifyLogin(")
	assert.Contains(t, body, "window.signalAuth(")
	assert.Contains(t, body, "}, 300);")
	assert.Contains(t, body, "Invalid credentials")
	assert.NotContains(t, body, "{{")
}
