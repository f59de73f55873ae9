// Package browsertest provides in-memory fakes of the browser API.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kioskd/kioskd/internal/browser"
)

var ErrPageClosed = errors.New("page closed")

// Launcher records every launch and hands out fake browsers.
type Launcher struct {
	mu       sync.Mutex
	launched []*Browser

	// Err fails every launch when set.
	Err error
	// Setup runs on every new browser before it is returned.
	Setup func(b *Browser)
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	b := NewBrowser(fmt.Sprintf("%s-%d", opts.Name, len(l.launched)), opts)
	l.launched = append(l.launched, b)
	setup := l.Setup
	l.mu.Unlock()

	if setup != nil {
		setup(b)
	}
	return b, nil
}

func (l *Launcher) Launched() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.launched...)
}

type Browser struct {
	Opts browser.LaunchOptions

	id     string
	mu     sync.Mutex
	pages  []*Page
	nextID int
	closed bool
	events chan browser.Event
	filter browser.RequestHandler

	// Navigations maps a requested URL to the URL the page ends up on.
	Navigations map[string]string
	CloseErr    error
	// PageSetup runs on every page before it is announced.
	PageSetup func(p *Page)
}

func NewBrowser(id string, opts browser.LaunchOptions) *Browser {
	return &Browser{
		Opts:        opts,
		id:          id,
		events:      make(chan browser.Event, 64),
		Navigations: make(map[string]string),
	}
}

func (b *Browser) ID() string {
	return b.id
}

// OpenPage simulates a page opened from outside the controller.
func (b *Browser) OpenPage(url string) *Page {
	b.mu.Lock()
	b.nextID++
	page := &Page{
		id:       fmt.Sprintf("%s/page-%d", b.id, b.nextID),
		url:      url,
		browser:  b,
		bindings: make(map[string]browser.BindingFunc),
		Typed:    make(map[string]string),
	}
	if b.PageSetup != nil {
		b.PageSetup(page)
	}
	b.pages = append(b.pages, page)
	b.emitLocked(browser.Event{Kind: browser.EventTargetCreated, TargetID: page.id, Page: page})
	b.mu.Unlock()

	return page
}

func (b *Browser) NewPage(ctx context.Context, url string) (browser.Page, error) {
	if b.IsClosed() {
		return nil, errors.New("browser closed")
	}
	return b.OpenPage(url), nil
}

func (b *Browser) Pages(ctx context.Context) ([]browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("browser closed")
	}
	result := make([]browser.Page, 0, len(b.pages))
	for _, page := range b.pages {
		result = append(result, page)
	}
	return result, nil
}

func (b *Browser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

func (b *Browser) LivePages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

func (b *Browser) Events() <-chan browser.Event {
	return b.events
}

// Disconnect simulates the browser process going away.
func (b *Browser) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.events <- browser.Event{Kind: browser.EventDisconnected}
	close(b.events)
}

// InterceptAll filters the requests of every page, present and future.
func (b *Browser) InterceptAll(ctx context.Context, handler browser.RequestHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("browser closed")
	}
	if b.filter != nil {
		return errors.New("browser already intercepted")
	}
	b.filter = handler
	return nil
}

func (b *Browser) Intercepted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter != nil
}

func (b *Browser) Close() error {
	b.Disconnect()
	return b.CloseErr
}

func (b *Browser) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) remove(page *Page) {
	b.mu.Lock()
	found := false
	for i, candidate := range b.pages {
		if candidate == page {
			b.pages = append(b.pages[:i], b.pages[i+1:]...)
			found = true
			break
		}
	}
	if found {
		b.emitLocked(browser.Event{Kind: browser.EventTargetDestroyed, TargetID: page.id})
	}
	b.mu.Unlock()
}

// emitLocked must be called with b.mu held. Events after a disconnect
// are dropped.
func (b *Browser) emitLocked(ev browser.Event) {
	if b.closed {
		return
	}
	b.events <- ev
}

type Page struct {
	id      string
	browser *Browser

	mu        sync.Mutex
	url       string
	closed    bool
	handler   browser.RequestHandler
	navigated []func(string)
	bindings  map[string]browser.BindingFunc

	Typed   map[string]string
	Clicked []string
	// ClickNavigates is the URL a click lands on, if any.
	ClickNavigates string
	NavigateErr    error
}

func (p *Page) ID() string {
	return p.id
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrPageClosed
	}
	return p.url, nil
}

func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitPolicy) error {
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if p.IsClosed() {
		return ErrPageClosed
	}

	p.browser.mu.Lock()
	landed, ok := p.browser.Navigations[url]
	p.browser.mu.Unlock()
	if !ok {
		landed = url
	}

	if p.Request(url) {
		return fmt.Errorf("navigation to %s was blocked", url)
	}
	p.FrameNavigated(landed)
	return nil
}

// FrameNavigated simulates a committed frame navigation.
func (p *Page) FrameNavigated(url string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.url = url
	listeners := append(([]func(string))(nil), p.navigated...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(url)
	}
}

// Request passes a request through the browser filter, then the page
// interceptor, and reports whether it was aborted. Requests nothing
// intercepts always continue.
func (p *Page) Request(url string) bool {
	p.browser.mu.Lock()
	filter := p.browser.filter
	p.browser.mu.Unlock()

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()

	for _, fn := range []browser.RequestHandler{filter, handler} {
		if fn == nil {
			continue
		}
		req := &Request{url: url}
		fn(req)
		if req.aborted {
			return true
		}
	}
	return false
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	p.Typed[selector] = text
	return nil
}

func (p *Page) Click(ctx context.Context, selector string, wait browser.WaitPolicy) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	p.Clicked = append(p.Clicked, selector)
	target := p.ClickNavigates
	p.mu.Unlock()

	if len(target) > 0 {
		p.FrameNavigated(target)
	}
	return nil
}

func (p *Page) Intercept(ctx context.Context, handler browser.RequestHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	p.handler = handler
	return nil
}

func (p *Page) Intercepted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

func (p *Page) OnFrameNavigated(fn func(url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, fn)
}

func (p *Page) Expose(ctx context.Context, name string, fn browser.BindingFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[name] = fn
	return nil
}

// Call invokes an exposed binding the way page script would.
func (p *Page) Call(name string, arg any) (any, error) {
	p.mu.Lock()
	fn, ok := p.bindings[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s is not exposed", name)
	}

	raw, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}
	return fn(raw)
}

func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.browser.remove(p)
	return nil
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Request struct {
	url      string
	aborted  bool
	resolved bool
}

func (r *Request) URL() string {
	return r.url
}

func (r *Request) Abort() {
	r.aborted = true
	r.resolved = true
}

func (r *Request) Continue() {
	r.resolved = true
}
