package watch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/go-resty/resty/v2"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/sirupsen/logrus"
)

type HTTPOptions struct {
	Endpoint string
	Token    string
	Interval time.Duration
	Timeout  time.Duration
}

// httpService polls JSON endpoints. Subscription paths are relative to the
// endpoint. A 404 means the record does not exist.
type httpService struct {
	client    *resty.Client
	scheduler *gocron.Scheduler
	interval  time.Duration
}

func NewHTTP(opts HTTPOptions) (Service, error) {
	if len(opts.Endpoint) == 0 {
		return nil, fmt.Errorf("http backend requires an endpoint")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := resty.New().
		SetBaseURL(opts.Endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if len(opts.Token) > 0 {
		client.SetAuthToken(opts.Token)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	scheduler.StartAsync()

	return &httpService{
		client:    client,
		scheduler: scheduler,
		interval:  interval,
	}, nil
}

// poller remembers the last body and ETag of one path.
type poller struct {
	client *resty.Client
	path   string

	mu       sync.Mutex
	etag     string
	last     []byte
	seen     bool
	stopped  bool
	missing  bool
	failures int
}

// fetch returns changed reports whether a new snapshot should be emitted.
// A nil body with changed set means the record is missing.
func (p *poller) fetch(ctx context.Context) (body []byte, changed bool, err error) {
	req := p.client.R().SetContext(ctx)
	if len(p.etag) > 0 {
		req.SetHeader("If-None-Match", p.etag)
	}

	resp, err := req.Get(p.path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to poll %s: %w", p.path, err)
	}

	switch resp.StatusCode() {
	case http.StatusNotModified:
		return nil, false, nil
	case http.StatusNotFound:
		changed = !p.seen || !p.missing
		p.seen, p.missing, p.last, p.etag = true, true, nil, ""
		return nil, changed, nil
	case http.StatusOK:
		body = resp.Body()
		changed = !p.seen || p.missing || !bytes.Equal(body, p.last)
		p.seen, p.missing, p.last = true, false, body
		p.etag = resp.Header().Get("ETag")
		return body, changed, nil
	default:
		return nil, false, fmt.Errorf("unexpected status %d polling %s", resp.StatusCode(), p.path)
	}
}

// maxPollFailures consecutive failures end the subscription.
const maxPollFailures = 5

func (s *httpService) subscribe(ctx context.Context, path string, emit func(body []byte) bool, fail func(error), done func()) error {
	p := &poller{client: s.client, path: path}

	job, err := s.scheduler.Every(s.interval).Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.stopped {
			return
		}

		body, changed, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.failures++
			logrus.WithError(err).WithField("failures", p.failures).Warn("Config poll failed")
			if p.failures >= maxPollFailures {
				fail(err)
				p.stopped = true
			}
			return
		}
		p.failures = 0

		if changed && !emit(body) {
			p.stopped = true
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule poll of %s: %w", path, err)
	}

	go func() {
		<-ctx.Done()
		s.scheduler.RemoveByReference(job)

		p.mu.Lock()
		p.stopped = true
		done()
		p.mu.Unlock()
	}()

	return nil
}

func (s *httpService) SubscribeDocument(ctx context.Context, path string) (<-chan DocumentEvent, error) {
	events := make(chan DocumentEvent)

	emit := func(body []byte) bool {
		if body == nil {
			return send(ctx, events, DocumentEvent{})
		}
		cfg, err := decodeConfig(body)
		return send(ctx, events, DocumentEvent{Config: cfg, Err: err})
	}
	fail := func(err error) {
		send(ctx, events, DocumentEvent{Err: err})
	}

	if err := s.subscribe(ctx, path, emit, fail, func() { close(events) }); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *httpService) SubscribeCollection(ctx context.Context, path string) (<-chan CollectionEvent, error) {
	events := make(chan CollectionEvent)

	emit := func(body []byte) bool {
		if body == nil {
			return send(ctx, events, CollectionEvent{Users: models.InternalUserSet{}})
		}
		users, err := decodeUsers(body)
		return send(ctx, events, CollectionEvent{Users: users, Err: err})
	}
	fail := func(err error) {
		send(ctx, events, CollectionEvent{Err: err})
	}

	if err := s.subscribe(ctx, path, emit, fail, func() { close(events) }); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *httpService) Close() error {
	s.scheduler.Stop()
	return nil
}
