package blacklist

import (
	"context"
	"fmt"

	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Enforcer applies a Blacklist to live pages. It fails closed: a page it
// cannot hook or inspect is closed.
type Enforcer struct {
	list    Blacklist
	metrics *metrics.Metrics
}

func NewEnforcer(list Blacklist, m *metrics.Metrics) *Enforcer {
	return &Enforcer{list: list, metrics: m}
}

func (e *Enforcer) Blacklist() Blacklist {
	return e.list
}

// AttachBrowser installs the request filter browser wide when b supports
// it, covering pages before they are attached. It reports whether a filter
// was installed.
func (e *Enforcer) AttachBrowser(ctx context.Context, b browser.Browser) (bool, error) {
	interceptor, ok := b.(browser.RequestInterceptor)
	if !ok {
		return false, nil
	}
	if err := interceptor.InterceptAll(ctx, e.requestFilter(b.ID())); err != nil {
		return false, fmt.Errorf("failed to intercept browser %s: %w", b.ID(), err)
	}
	return true, nil
}

func (e *Enforcer) requestFilter(scope string) browser.RequestHandler {
	return func(req browser.Request) {
		target := req.URL()
		if e.list.Blocks(target) {
			logrus.WithFields(logrus.Fields{
				"scope": scope,
				"url":   target,
			}).Warn("[blk] Aborting blacklisted request")
			e.metrics.RequestBlocked()
			req.Abort()
			return
		}
		req.Continue()
	}
}

// Attach installs the request filter and the frame navigation filter on
// page, then checks the page's current URL.
func (e *Enforcer) Attach(ctx context.Context, page browser.Page) error {
	err := page.Intercept(ctx, e.requestFilter(page.ID()))
	if err != nil {
		e.closePage(page, "unhookable")
		return fmt.Errorf("failed to intercept page %s: %w", page.ID(), err)
	}

	page.OnFrameNavigated(func(target string) {
		if e.list.Blocks(target) {
			logrus.WithFields(logrus.Fields{
				"page": page.ID(),
				"url":  target,
			}).Warn("[blk] Closing page after blacklisted navigation")
			e.closePage(page, "navigation")
		}
	})

	current, err := page.URL(ctx)
	if err != nil {
		e.closePage(page, "uninspectable")
		return fmt.Errorf("failed to read url of page %s: %w", page.ID(), err)
	}

	if e.list.Blocks(current) {
		logrus.WithFields(logrus.Fields{
			"page": page.ID(),
			"url":  current,
		}).Warn("[blk] Closing page opened on a blacklisted url")
		e.closePage(page, "initial_url")
	}

	return nil
}

func (e *Enforcer) closePage(page browser.Page, reason string) {
	e.metrics.PageClosed(reason)
	if err := page.Close(); err != nil {
		logrus.WithError(err).WithField("page", page.ID()).Debug("Failed to close page")
	}
}
