package fullsession

import (
	"context"
	"sync"

	"github.com/kioskd/kioskd/internal/blacklist"
	"github.com/kioskd/kioskd/internal/browser"
	"github.com/sirupsen/logrus"
)

type transition func(ctx context.Context, s *session, ev browser.Event)

var transitions = map[browser.EventKind]transition{
	browser.EventTargetCreated:   onTargetCreated,
	browser.EventTargetDestroyed: onTargetDestroyed,
	browser.EventDisconnected:    onDisconnected,
}

// session tracks the pages of one full-session browser. Browser callbacks
// and the dispatch goroutine share it.
type session struct {
	browser  browser.Browser
	enforcer *blacklist.Enforcer

	mu       sync.Mutex
	attached map[string]struct{}

	endOnce sync.Once
	ended   chan struct{}
	reason  string
}

func newSession(b browser.Browser, enforcer *blacklist.Enforcer) *session {
	return &session{
		browser:  b,
		enforcer: enforcer,
		attached: make(map[string]struct{}),
		ended:    make(chan struct{}),
	}
}

func (s *session) dispatch(ctx context.Context, events <-chan browser.Event) {
	for ev := range events {
		if handle, ok := transitions[ev.Kind]; ok {
			handle(ctx, s, ev)
		}
	}
	s.end("event stream closed")
}

// attach hooks the enforcer into page once.
func (s *session) attach(ctx context.Context, page browser.Page) {
	s.mu.Lock()
	if _, ok := s.attached[page.ID()]; ok {
		s.mu.Unlock()
		return
	}
	s.attached[page.ID()] = struct{}{}
	s.mu.Unlock()

	if err := s.enforcer.Attach(ctx, page); err != nil {
		logrus.WithError(err).WithField("page", page.ID()).Warn("Closed page that could not be policed")
	}
}

func (s *session) detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, id)
}

func (s *session) end(reason string) {
	s.endOnce.Do(func() {
		s.reason = reason
		close(s.ended)
	})
}

func onTargetCreated(ctx context.Context, s *session, ev browser.Event) {
	if ev.Page == nil {
		return
	}
	s.attach(ctx, ev.Page)
}

func onTargetDestroyed(ctx context.Context, s *session, ev browser.Event) {
	s.detach(ev.TargetID)

	pages, err := s.browser.Pages(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to count pages after close")
		return
	}
	if len(pages) == 0 {
		s.end("last page closed")
	}
}

func onDisconnected(ctx context.Context, s *session, ev browser.Event) {
	s.end("browser disconnected")
}
