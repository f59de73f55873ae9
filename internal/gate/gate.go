// Package gate runs the locked kiosk browser that holds the terminal until
// an internal user signs in.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/sirupsen/logrus"
)

const DefaultPollInterval = 300 * time.Millisecond

var ErrGateClosed = errors.New("kiosk browser closed before sign in")

type Options struct {
	ProfileDir   string
	Bin          string
	NoSandbox    bool
	PollInterval time.Duration
	Timeout      time.Duration
}

type Gate struct {
	launcher browser.Launcher
	registry *registry.Registry
	verifier Verifier
	metrics  *metrics.Metrics
	opts     Options
}

func New(launcher browser.Launcher, reg *registry.Registry, verifier Verifier, m *metrics.Metrics, opts Options) *Gate {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Gate{
		launcher: launcher,
		registry: reg,
		verifier: verifier,
		metrics:  m,
		opts:     opts,
	}
}

// Run blocks until a valid pair is submitted. The kiosk browser is closed
// before Run returns.
func (g *Gate) Run(ctx context.Context) error {
	formURL, err := FormURL(g.opts.PollInterval)
	if err != nil {
		return err
	}

	b, release, err := g.registry.Launch(ctx, g.launcher, browser.LaunchOptions{
		Name:       "gate",
		ProfileDir: g.opts.ProfileDir,
		Bin:        g.opts.Bin,
		Kiosk:      true,
		NoSandbox:  g.opts.NoSandbox,
	})
	if err != nil {
		return fmt.Errorf("failed to launch kiosk browser: %w", err)
	}
	defer release()

	// Subscribe before touching pages so no tab escapes the single-tab rule
	events := b.Events()

	setupCtx, cancelSetup := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancelSetup()

	page, err := firstPage(setupCtx, b)
	if err != nil {
		return err
	}

	disconnected := make(chan struct{})
	go g.enforceSingleTab(events, page.ID(), disconnected)

	surface := NewSurface(g.verifier, g.metrics)
	if err := page.Expose(ctx, VerifyBinding, surface.handleVerify); err != nil {
		return err
	}
	if err := page.Expose(ctx, SignalBinding, surface.handleSignal); err != nil {
		return err
	}

	if err := page.Navigate(setupCtx, formURL, browser.WaitLoad); err != nil {
		return fmt.Errorf("failed to show kiosk gate: %w", err)
	}

	logrus.Info("Kiosk gate waiting for sign in")

	select {
	case <-surface.Authenticated():
		logrus.WithField("failures", surface.Failures()).Info("Kiosk gate passed")
		return nil
	case <-disconnected:
		return ErrGateClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstPage(ctx context.Context, b browser.Browser) (browser.Page, error) {
	pages, err := b.Pages(ctx)
	if err != nil {
		return nil, err
	}
	if len(pages) > 0 {
		return pages[0], nil
	}
	return b.NewPage(ctx, "about:blank")
}

// enforceSingleTab closes every page other than the gate page as soon as it
// appears.
func (g *Gate) enforceSingleTab(events <-chan browser.Event, gatePage string, disconnected chan<- struct{}) {
	defer close(disconnected)

	for ev := range events {
		switch ev.Kind {
		case browser.EventTargetCreated:
			if ev.Page == nil || ev.Page.ID() == gatePage {
				continue
			}
			logrus.WithField("page", ev.Page.ID()).Warn("Closing extra tab in kiosk gate")
			g.metrics.PageClosed("extra_tab")
			if err := ev.Page.Close(); err != nil {
				logrus.WithError(err).Debug("Failed to close extra tab")
			}
		case browser.EventDisconnected:
			return
		}
	}
}
