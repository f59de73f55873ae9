// Package registry tracks every live browser so shutdown can close them
// all, including those held by a phase that is still running.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("registry is closed")

type Handle interface {
	ID() string
	Close() error
}

type Registry struct {
	mu      sync.Mutex
	handles map[string]Handle
	sealed  bool
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Registry {
	return &Registry{
		handles: make(map[string]Handle),
		metrics: m,
	}
}

// Register takes ownership of h. Once the registry is sealed the handle is
// closed immediately and ErrClosed returned.
func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		if err := h.Close(); err != nil {
			logrus.WithError(err).WithField("handle", h.ID()).Debug("Failed to close late handle")
		}
		return ErrClosed
	}
	r.handles[h.ID()] = h
	count := len(r.handles)
	r.mu.Unlock()

	r.metrics.BrowsersOpen(count)
	return nil
}

func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	delete(r.handles, h.ID())
	count := len(r.handles)
	r.mu.Unlock()

	r.metrics.BrowsersOpen(count)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CloseAll seals the registry and closes every handle concurrently.
// Failures are logged and returned; they never stop the sweep.
func (r *Registry) CloseAll() []error {
	r.mu.Lock()
	r.sealed = true
	handles := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[string]Handle)
	r.mu.Unlock()

	r.metrics.BrowsersOpen(0)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			if err := h.Close(); err != nil {
				logrus.WithError(err).WithField("handle", h.ID()).Warn("Failed to close browser")
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to close %s: %w", h.ID(), err))
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	return errs
}

// Launch starts a browser and registers it. The returned release func
// unregisters and closes it and is safe to call more than once.
func (r *Registry) Launch(ctx context.Context, launcher browser.Launcher, opts browser.LaunchOptions) (browser.Browser, func(), error) {
	b, err := launcher.Launch(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	if err := r.Register(b); err != nil {
		return nil, nil, fmt.Errorf("failed to register %s browser: %w", opts.Name, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.Unregister(b)
			if err := b.Close(); err != nil {
				logrus.WithError(err).WithField("browser", b.ID()).Debug("Failed to close browser")
			}
		})
	}
	return b, release, nil
}
