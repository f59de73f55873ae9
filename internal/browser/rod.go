package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ysmood/gson"
)

// RodLauncher starts a local Chromium for each Launch call.
type RodLauncher struct{}

func NewRodLauncher() *RodLauncher {
	return &RodLauncher{}
}

func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	ln := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		UserDataDir(opts.ProfileDir).
		NoSandbox(opts.NoSandbox)

	if len(opts.Bin) > 0 {
		ln = ln.Bin(opts.Bin)
	}

	if opts.Kiosk {
		ln = ln.Set(flags.Flag("kiosk")).
			Set(flags.Flag("disable-infobars")).
			Set(flags.Flag("disable-setuid-sandbox"))
	}

	if opts.Maximized {
		ln = ln.Set(flags.Flag("start-maximized"))
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s browser: %w", opts.Name, err)
	}

	b := rod.New().ControlURL(controlURL)
	if !opts.Headless {
		// Let the window size drive the viewport.
		b = b.NoDefaultDevice()
	}

	if err := b.Connect(); err != nil {
		// Kill, not Cleanup: Cleanup removes the user data dir.
		ln.Kill()
		return nil, fmt.Errorf("failed to connect to %s browser: %w", opts.Name, err)
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		_ = b.Close()
		ln.Kill()
		return nil, fmt.Errorf("failed to enable target discovery: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"browser": opts.Name,
		"profile": opts.ProfileDir,
		"pid":     ln.PID(),
	}).Debug("Browser launched")

	return &rodBrowser{
		id:       fmt.Sprintf("%s-%s", opts.Name, uuid.NewString()[:8]),
		browser:  b,
		launcher: ln,
		pages:    make(map[proto.TargetTargetID]*rodPage),
		done:     make(chan struct{}),
	}, nil
}

type rodBrowser struct {
	id       string
	browser  *rod.Browser
	launcher *launcher.Launcher

	mu     sync.Mutex
	pages  map[proto.TargetTargetID]*rodPage
	router *rod.HijackRouter

	eventsOnce sync.Once
	events     chan Event

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (b *rodBrowser) ID() string {
	return b.id
}

func (b *rodBrowser) wrap(page *rod.Page) *rodPage {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.pages[page.TargetID]; ok {
		return existing
	}
	wrapped := &rodPage{page: page}
	b.pages[page.TargetID] = wrapped
	return wrapped
}

func (b *rodBrowser) forget(id proto.TargetTargetID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pages, id)
}

func (b *rodBrowser) NewPage(ctx context.Context, url string) (Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return b.wrap(page.Context(context.Background())), nil
}

func (b *rodBrowser) Pages(ctx context.Context) ([]Page, error) {
	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	result := make([]Page, 0, len(pages))
	for _, page := range pages {
		result = append(result, b.wrap(page.Context(context.Background())))
	}
	return result, nil
}

func (b *rodBrowser) Events() <-chan Event {
	b.eventsOnce.Do(func() {
		b.events = make(chan Event, 16)
		go b.pump()
	})
	return b.events
}

func (b *rodBrowser) pump() {
	defer close(b.events)

	for msg := range b.browser.Event() {
		created := proto.TargetTargetCreated{}
		destroyed := proto.TargetTargetDestroyed{}

		switch {
		case msg.Load(&created):
			if created.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				continue
			}
			page, err := b.browser.PageFromTarget(created.TargetInfo.TargetID)
			if err != nil {
				logrus.WithError(err).WithField("target", created.TargetInfo.TargetID).
					Warn("Failed to attach to new page")
				continue
			}
			ev := Event{
				Kind:     EventTargetCreated,
				TargetID: string(created.TargetInfo.TargetID),
				Page:     b.wrap(page),
			}
			if !b.emit(ev) {
				return
			}
		case msg.Load(&destroyed):
			b.forget(destroyed.TargetID)
			if !b.emit(Event{Kind: EventTargetDestroyed, TargetID: string(destroyed.TargetID)}) {
				return
			}
		}
	}

	b.emit(Event{Kind: EventDisconnected})
}

func (b *rodBrowser) emit(ev Event) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}

// InterceptAll enables request interception on the browser session, so a
// popup's first request is paused before its page can be attached.
func (b *rodBrowser) InterceptAll(ctx context.Context, handler RequestHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.router != nil {
		return fmt.Errorf("browser %s is already intercepted", b.id)
	}

	router := b.browser.HijackRequests()
	if err := router.Add("*", "", hijackHandler(handler)); err != nil {
		return fmt.Errorf("failed to intercept browser requests: %w", err)
	}

	go router.Run()
	b.router = router
	return nil
}

func (b *rodBrowser) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		router := b.router
		b.router = nil
		b.mu.Unlock()
		if router != nil {
			_ = router.Stop()
		}

		b.closeErr = b.browser.Close()
		b.launcher.Kill()
	})
	return b.closeErr
}

type rodPage struct {
	page *rod.Page

	mu     sync.Mutex
	router *rod.HijackRouter
}

func (p *rodPage) ID() string {
	return string(p.page.TargetID)
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page url: %w", err)
	}
	return info.URL, nil
}

func lifecycleEvent(wait WaitPolicy) proto.PageLifecycleEventName {
	if wait == WaitNetworkIdle {
		return proto.PageLifecycleEventNameNetworkAlmostIdle
	}
	return proto.PageLifecycleEventNameLoad
}

func (p *rodPage) Navigate(ctx context.Context, url string, wait WaitPolicy) error {
	page := p.page.Context(ctx)
	waitNavigation := page.WaitNavigation(lifecycleEvent(wait))

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	waitNavigation()
	return ctx.Err()
}

func (p *rodPage) Type(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element %s never became visible: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Click(ctx context.Context, selector string, wait WaitPolicy) error {
	page := p.page.Context(ctx)

	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", selector, err)
	}

	waitNavigation := page.WaitNavigation(lifecycleEvent(wait))
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}

	waitNavigation()
	return ctx.Err()
}

func (p *rodPage) Intercept(ctx context.Context, handler RequestHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.router != nil {
		return fmt.Errorf("page %s is already intercepted", p.page.TargetID)
	}

	router := p.page.HijackRequests()
	if err := router.Add("*", "", hijackHandler(handler)); err != nil {
		return fmt.Errorf("failed to intercept requests: %w", err)
	}

	go router.Run()
	p.router = router
	return nil
}

func hijackHandler(handler RequestHandler) func(*rod.Hijack) {
	return func(h *rod.Hijack) {
		h.OnError = func(err error) {
			logrus.WithError(err).Debug("Intercepted request could not be resolved")
		}
		handler(&rodRequest{hijack: h})
	}
}

func (p *rodPage) OnFrameNavigated(fn func(url string)) {
	wait := p.page.EachEvent(func(e *proto.PageFrameNavigated) {
		if e.Frame != nil {
			fn(e.Frame.URL)
		}
	})
	go wait()
}

// Expose binds for the lifetime of the page; ctx only bounds the setup.
func (p *rodPage) Expose(ctx context.Context, name string, fn BindingFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Expose(name, func(arg gson.JSON) (interface{}, error) {
		return fn(json.RawMessage(arg.JSON("", "")))
	})
	if err != nil {
		return fmt.Errorf("failed to expose %s: %w", name, err)
	}
	return nil
}

func (p *rodPage) Close() error {
	p.mu.Lock()
	router := p.router
	p.router = nil
	p.mu.Unlock()

	if router != nil {
		_ = router.Stop()
	}
	return p.page.Close()
}

type rodRequest struct {
	hijack *rod.Hijack
}

func (r *rodRequest) URL() string {
	return r.hijack.Request.URL().String()
}

func (r *rodRequest) Abort() {
	r.hijack.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
}

func (r *rodRequest) Continue() {
	r.hijack.ContinueRequest(&proto.FetchContinueRequest{})
}
