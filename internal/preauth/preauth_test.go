package preauth

import (
	"context"
	"errors"
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
	ExternalEmail: "kiosk@example.com",
	ExternalPass:  "secret",
}

func TestRequiresLogin(t *testing.T) {
	assert.True(t, RequiresLogin("https://app.example.com/login?next=/dispatch"))
	assert.False(t, RequiresLogin("https://app.example.com/dispatch"))
}

func runAgent(t *testing.T, setup func(b *browsertest.Browser)) (*browsertest.Browser, *browsertest.Page, *registry.Registry, error) {
	t.Helper()

	var page *browsertest.Page
	launcher := &browsertest.Launcher{Setup: func(b *browsertest.Browser) {
		b.PageSetup = func(p *browsertest.Page) {
			page = p
			p.ClickNavigates = "https://app.example.com/dispatch"
		}
		if setup != nil {
			setup(b)
		}
	}}
	reg := registry.New(nil)

	agent := New(launcher, reg, Options{ProfileDir: "/var/lib/kioskd/user_data", Timeout: time.Second})
	err := agent.Run(context.Background(), remote)

	launched := launcher.Launched()
	require.Len(t, launched, 1)
	return launched[0], page, reg, err
}

func TestRunSignsInWhenRedirected(t *testing.T) {
	b, page, reg, err := runAgent(t, func(b *browsertest.Browser) {
		b.Navigations["https://app.example.com/dispatch"] = "https://app.example.com/login"
	})
	require.NoError(t, err)

	assert.True(t, b.Opts.Headless)
	assert.Equal(t, "/var/lib/kioskd/user_data", b.Opts.ProfileDir)

	require.NotNil(t, page)
	assert.Equal(t, "kiosk@example.com", page.Typed[EmailSelector])
	assert.Equal(t, "secret", page.Typed[PasswordSelector])
	assert.Equal(t, []string{SubmitSelector}, page.Clicked)

	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, reg.Len())
}

func TestRunSkipsLoginWhenSignedIn(t *testing.T) {
	b, page, _, err := runAgent(t, nil)
	require.NoError(t, err)

	require.NotNil(t, page)
	assert.Empty(t, page.Typed)
	assert.Empty(t, page.Clicked)
	assert.True(t, b.IsClosed())
}

func TestRunClosesBrowserOnFailure(t *testing.T) {
	b, _, reg, err := runAgent(t, func(b *browsertest.Browser) {
		next := b.PageSetup
		b.PageSetup = func(p *browsertest.Page) {
			next(p)
			p.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
		}
	})

	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, reg.Len())
}

func TestRunLaunchFailure(t *testing.T) {
	agent := New(&browsertest.Launcher{Err: errors.New("chromium not found")}, registry.New(nil), Options{})
	assert.Error(t, agent.Run(context.Background(), remote))
}
