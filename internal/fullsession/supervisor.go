// Package fullsession supervises the unrestricted browser session and
// keeps the blacklist enforced on every page it opens.
package fullsession

import (
	"context"
	"fmt"
	"time"

	"github.com/kioskd/kioskd/internal/blacklist"
	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/sirupsen/logrus"
)

type Options struct {
	ProfileDir string
	Bin        string
	NoSandbox  bool
	Timeout    time.Duration
}

type Supervisor struct {
	launcher browser.Launcher
	registry *registry.Registry
	metrics  *metrics.Metrics
	opts     Options
}

func New(launcher browser.Launcher, reg *registry.Registry, m *metrics.Metrics, opts Options) *Supervisor {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Supervisor{
		launcher: launcher,
		registry: reg,
		metrics:  m,
		opts:     opts,
	}
}

// Run blocks until the last page closes or the browser goes away.
func (s *Supervisor) Run(ctx context.Context, cfg models.RemoteConfig) error {
	enforcer := blacklist.NewEnforcer(blacklist.New(cfg.Blacklist), s.metrics)

	b, release, err := s.registry.Launch(ctx, s.launcher, browser.LaunchOptions{
		Name:       "full",
		ProfileDir: s.opts.ProfileDir,
		Bin:        s.opts.Bin,
		Maximized:  true,
		NoSandbox:  s.opts.NoSandbox,
	})
	if err != nil {
		return fmt.Errorf("failed to launch full session browser: %w", err)
	}
	defer release()

	sess := newSession(b, enforcer)
	events := b.Events()

	setupCtx, cancelSetup := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancelSetup()

	// Popups get their page filter only after TargetCreated is handled
	wide, err := enforcer.AttachBrowser(setupCtx, b)
	if err != nil {
		return err
	}

	// Open our page first so closing a restored tab cannot empty the browser
	page, err := b.NewPage(setupCtx, "about:blank")
	if err != nil {
		return err
	}
	sess.attach(setupCtx, page)

	pages, err := b.Pages(setupCtx)
	if err != nil {
		return err
	}
	for _, existing := range pages {
		sess.attach(setupCtx, existing)
	}

	go sess.dispatch(ctx, events)

	target := cfg.DispatchURL()
	if err := page.Navigate(setupCtx, target, browser.WaitNetworkIdle); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}

	logrus.WithFields(logrus.Fields{
		"url":       target,
		"blacklist": len(enforcer.Blacklist().Entries()),
		"wide":      wide,
	}).Info("Full session started")

	select {
	case <-sess.ended:
		logrus.WithField("reason", sess.reason).Info("Full session ended")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
