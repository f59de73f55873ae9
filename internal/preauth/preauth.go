// Package preauth signs the persisted profile into the remote application
// with a throwaway headless browser.
package preauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/sirupsen/logrus"
)

const (
	EmailSelector    = `input[data-cy="loginEmailField"]`
	PasswordSelector = `input[data-cy="loginPasswordField"]`
	SubmitSelector   = `button[data-cy="signInBtn"]`

	loginPathMarker = "/login"
)

type Options struct {
	ProfileDir string
	Bin        string
	NoSandbox  bool
	Timeout    time.Duration
}

type Agent struct {
	launcher browser.Launcher
	registry *registry.Registry
	opts     Options
}

func New(launcher browser.Launcher, reg *registry.Registry, opts Options) *Agent {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Agent{launcher: launcher, registry: reg, opts: opts}
}

// RequiresLogin reports whether the remote application redirected to its
// login page.
func RequiresLogin(url string) bool {
	return strings.Contains(url, loginPathMarker)
}

// Run leaves the profile holding a remote session. A profile that is
// already signed in is not an error.
func (a *Agent) Run(ctx context.Context, cfg models.RemoteConfig) error {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	b, release, err := a.registry.Launch(ctx, a.launcher, browser.LaunchOptions{
		Name:       "preauth",
		ProfileDir: a.opts.ProfileDir,
		Bin:        a.opts.Bin,
		Headless:   true,
		NoSandbox:  a.opts.NoSandbox,
	})
	if err != nil {
		return fmt.Errorf("failed to launch pre-auth browser: %w", err)
	}
	defer release()

	page, err := b.NewPage(ctx, "about:blank")
	if err != nil {
		return err
	}

	target := cfg.DispatchURL()
	if err := page.Navigate(ctx, target, browser.WaitNetworkIdle); err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}

	current, err := page.URL(ctx)
	if err != nil {
		return err
	}

	if !RequiresLogin(current) {
		logrus.WithField("url", current).Info("Profile already signed in")
		return nil
	}

	logrus.Info("Signing profile into remote application")

	if err := page.Type(ctx, EmailSelector, cfg.ExternalEmail); err != nil {
		return fmt.Errorf("failed to enter email: %w", err)
	}
	if err := page.Type(ctx, PasswordSelector, cfg.ExternalPass); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if err := page.Click(ctx, SubmitSelector, browser.WaitNetworkIdle); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}

	landed, err := page.URL(ctx)
	if err != nil {
		return err
	}

	if RequiresLogin(landed) {
		// The remote app decides; the full session will show its login page.
		logrus.WithField("url", landed).Warn("Still on login page after sign in")
	} else {
		logrus.WithField("url", landed).Info("Profile signed in")
	}

	return nil
}
