// Package browser is the narrow browser-control surface used by the kiosk
// phases. The production implementation drives Chromium over CDP with rod.
package browser

import (
	"context"
	"encoding/json"
)

type WaitPolicy int

const (
	// WaitLoad waits for the load event.
	WaitLoad WaitPolicy = iota
	// WaitNetworkIdle waits until at most two connections are in flight.
	WaitNetworkIdle
)

// LaunchOptions describe one browser instance. All phases share ProfileDir.
type LaunchOptions struct {
	Name       string
	ProfileDir string
	Bin        string
	Headless   bool
	Kiosk      bool
	Maximized  bool
	NoSandbox  bool
}

type EventKind int

const (
	EventTargetCreated EventKind = iota
	EventTargetDestroyed
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventTargetCreated:
		return "target_created"
	case EventTargetDestroyed:
		return "target_destroyed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a browser lifecycle notification. Page is set for
// EventTargetCreated only.
type Event struct {
	Kind     EventKind
	TargetID string
	Page     Page
}

// Request is an intercepted outgoing request. Exactly one of Abort or
// Continue must be called.
type Request interface {
	URL() string
	Abort()
	Continue()
}

type RequestHandler func(Request)

// BindingFunc backs a function exposed on the page's window object. The
// page passes a single JSON argument.
type BindingFunc func(arg json.RawMessage) (any, error)

type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

type Browser interface {
	ID() string
	NewPage(ctx context.Context, url string) (Page, error)
	Pages(ctx context.Context) ([]Page, error)
	// Events is a single-consumer stream that closes after EventDisconnected.
	Events() <-chan Event
	Close() error
}

// RequestInterceptor is implemented by browsers that can filter the
// requests of every target, including targets that do not exist yet.
type RequestInterceptor interface {
	InterceptAll(ctx context.Context, handler RequestHandler) error
}

type Page interface {
	ID() string
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string, wait WaitPolicy) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string, wait WaitPolicy) error
	// Intercept routes every outgoing request of the page through handler.
	Intercept(ctx context.Context, handler RequestHandler) error
	// OnFrameNavigated is called with the URL of every committed frame
	// navigation, main frame and subframes alike.
	OnFrameNavigated(fn func(url string))
	// Expose must be called before the document that uses the binding loads.
	Expose(ctx context.Context, name string, fn BindingFunc) error
	Close() error
}
