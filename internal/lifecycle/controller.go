// Package lifecycle sequences the kiosk phases and decides when a config
// change forces a wipe and restart.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/profile"
	"github.com/kioskd/kioskd/internal/registry"
	"github.com/kioskd/kioskd/internal/watch"
	"github.com/sirupsen/logrus"
)

type PreAuth interface {
	Run(ctx context.Context, cfg models.RemoteConfig) error
}

type Gate interface {
	Run(ctx context.Context) error
}

type FullSession interface {
	Run(ctx context.Context, cfg models.RemoteConfig) error
}

type Options struct {
	RunID          string
	DocumentPath   string
	CollectionPath string
}

type Dependencies struct {
	Watch    watch.Service
	Registry *registry.Registry
	Profile  *profile.Profile
	Users    *UserStore
	Metrics  *metrics.Metrics

	PreAuth     PreAuth
	Gate        Gate
	FullSession FullSession
}

// Status is a point-in-time view for the status server.
type Status struct {
	RunID         string          `json:"run_id"`
	Phase         string          `json:"phase"`
	Started       bool            `json:"started"`
	ConfigReady   bool            `json:"config_ready"`
	UsersReady    bool            `json:"users_ready"`
	InternalUsers int             `json:"internal_users"`
	OpenBrowsers  int             `json:"open_browsers"`
	Outcome       *models.Outcome `json:"outcome,omitempty"`
}

type Controller struct {
	deps Dependencies
	opts Options
	log  *logrus.Entry

	// Owned by the Run goroutine
	readiness readiness
	started   bool

	phaseCtx     context.Context
	cancelPhases context.CancelFunc
	phaseDone    chan error

	phase       atomic.Int32
	configReady atomic.Bool
	usersReady  atomic.Bool
	running     atomic.Bool

	terminateOnce sync.Once
	outcome       atomic.Pointer[models.Outcome]
	done          chan struct{}
}

func New(deps Dependencies, opts Options) *Controller {
	if deps.Users == nil {
		deps.Users = NewUserStore()
	}

	phaseCtx, cancel := context.WithCancel(context.Background())

	return &Controller{
		deps:         deps,
		opts:         opts,
		log:          logrus.WithField(models.LogFieldRun, opts.RunID),
		phaseCtx:     phaseCtx,
		cancelPhases: cancel,
		phaseDone:    make(chan error, 1),
		done:         make(chan struct{}),
	}
}

func (c *Controller) Phase() models.SessionPhase {
	return models.SessionPhase(c.phase.Load())
}

func (c *Controller) setPhase(phase models.SessionPhase) {
	c.phase.Store(int32(phase))
	c.deps.Metrics.PhaseEntered(phase.String())
	c.log.WithField(models.LogFieldPhase, phase.String()).Info("Entering phase")
}

func (c *Controller) Status() Status {
	return Status{
		RunID:         c.opts.RunID,
		Phase:         c.Phase().String(),
		Started:       c.running.Load(),
		ConfigReady:   c.configReady.Load(),
		UsersReady:    c.usersReady.Load(),
		InternalUsers: c.deps.Users.Len(),
		OpenBrowsers:  c.deps.Registry.Len(),
		Outcome:       c.outcome.Load(),
	}
}

// Done closes after termination.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) terminated() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Run subscribes to both streams and serialises every event until the
// controller terminates. It never restarts; the caller exits with the
// returned code.
func (c *Controller) Run(ctx context.Context) models.Outcome {
	c.log.Info("Waiting for remote configuration")

	docs, err := c.deps.Watch.SubscribeDocument(ctx, c.opts.DocumentPath)
	if err != nil {
		c.forceRestart(false, models.ExitFatal, fmt.Sprintf("failed to subscribe to config: %v", err))
		return *c.outcome.Load()
	}

	users, err := c.deps.Watch.SubscribeCollection(ctx, c.opts.CollectionPath)
	if err != nil {
		c.forceRestart(false, models.ExitFatal, fmt.Sprintf("failed to subscribe to internal users: %v", err))
		return *c.outcome.Load()
	}

	for !c.terminated() {
		select {
		case <-ctx.Done():
			c.forceRestart(false, models.ExitOK, "operator interrupt")

		case ev, ok := <-docs:
			if !ok {
				docs = nil
				c.streamClosed(ctx, "config")
				continue
			}
			c.deps.Metrics.SnapshotReceived("config")
			c.onDocumentEvent(ev)

		case ev, ok := <-users:
			if !ok {
				users = nil
				c.streamClosed(ctx, "internal users")
				continue
			}
			c.deps.Metrics.SnapshotReceived("users")
			if ev.Err != nil {
				c.forceRestart(false, models.ExitFatal, fmt.Sprintf("internal user stream failed: %v", ev.Err))
				continue
			}
			c.OnUserSetSnapshot(ev.Users)

		case err := <-c.phaseDone:
			if err != nil {
				c.forceRestart(true, models.ExitFatal, fmt.Sprintf("phase sequence failed: %v", err))
				continue
			}
			c.terminate(models.Outcome{Code: models.ExitOK, Reason: "full session ended"})
		}
	}

	return *c.outcome.Load()
}

func (c *Controller) streamClosed(ctx context.Context, stream string) {
	if ctx.Err() != nil {
		c.forceRestart(false, models.ExitOK, "operator interrupt")
		return
	}
	c.forceRestart(false, models.ExitFatal, stream+" stream closed")
}

func (c *Controller) onDocumentEvent(ev watch.DocumentEvent) {
	switch {
	case ev.Err == nil:
		c.OnConfigSnapshot(ev.Config)
	case errors.Is(ev.Err, watch.ErrMalformedDocument):
		c.log.WithError(ev.Err).Error("Remote configuration is malformed")
		c.forceRestart(true, models.ExitFatal, "malformed config document")
	default:
		c.forceRestart(false, models.ExitFatal, fmt.Sprintf("config stream failed: %v", ev.Err))
	}
}

// OnConfigSnapshot adopts the first snapshot and restarts on any change.
// A nil snapshot means the record is gone. Not safe for concurrent use;
// Run serialises calls.
func (c *Controller) OnConfigSnapshot(cfg *models.RemoteConfig) {
	if cfg == nil {
		c.log.Error("Remote configuration is missing")
		c.forceRestart(true, models.ExitFatal, "config document missing")
		return
	}

	if !c.readiness.hasConfig() {
		c.readiness.setConfig(*cfg)
		c.configReady.Store(true)
		c.log.WithField("config", cfg.String()).Info("Remote configuration received")
		c.tryStart()
		return
	}

	if c.readiness.config.Equal(*cfg) {
		c.log.Debug("Remote configuration unchanged")
		return
	}

	c.forceRestart(true, models.ExitOK, "remote configuration changed")
}

// OnUserSetSnapshot adopts the first user set and restarts on any change,
// reordering included. Not safe for concurrent use.
func (c *Controller) OnUserSetSnapshot(users models.InternalUserSet) {
	if !c.readiness.hasUsers() {
		c.readiness.setUsers(users)
		c.deps.Users.Set(users)
		c.usersReady.Store(true)
		c.log.WithField("users", len(users)).Info("Internal users received")
		c.tryStart()
		return
	}

	if c.readiness.users.Equal(users) {
		c.log.Debug("Internal users unchanged")
		return
	}

	c.forceRestart(true, models.ExitOK, "internal users changed")
}

func (c *Controller) tryStart() {
	if c.started || !c.readiness.Ready() || c.terminated() {
		return
	}
	c.started = true
	c.running.Store(true)

	cfg := *c.readiness.config
	go func() {
		c.phaseDone <- c.runSequence(c.phaseCtx, cfg)
	}()
}

func (c *Controller) runSequence(ctx context.Context, cfg models.RemoteConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phase panicked: %v", r)
		}
	}()

	if err := c.deps.Profile.Ensure(); err != nil {
		return err
	}

	if err := c.enterPhase(ctx, models.PhasePreAuth); err != nil {
		return err
	}
	if err := c.deps.PreAuth.Run(ctx, cfg); err != nil {
		return fmt.Errorf("pre-auth: %w", err)
	}

	if err := c.enterPhase(ctx, models.PhaseKioskGate); err != nil {
		return err
	}
	if err := c.deps.Gate.Run(ctx); err != nil {
		return fmt.Errorf("kiosk gate: %w", err)
	}

	if err := c.enterPhase(ctx, models.PhaseFullSession); err != nil {
		return err
	}
	if err := c.deps.FullSession.Run(ctx, cfg); err != nil {
		return fmt.Errorf("full session: %w", err)
	}

	return nil
}

// enterPhase refuses to move forward once shutdown has begun.
func (c *Controller) enterPhase(ctx context.Context, phase models.SessionPhase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.setPhase(phase)
	return nil
}

// forceRestart closes every browser, optionally wipes the profile and
// records the outcome. Only the first call has any effect.
func (c *Controller) forceRestart(wipe bool, code models.ExitCode, reason string) {
	c.shutdown(models.Outcome{Code: code, Wipe: wipe, Reason: reason}, models.PhaseUninitialized)
}

func (c *Controller) terminate(outcome models.Outcome) {
	c.shutdown(outcome, models.PhaseTerminating)
}

func (c *Controller) shutdown(outcome models.Outcome, final models.SessionPhase) {
	fired := false
	c.terminateOnce.Do(func() {
		fired = true

		log := c.log.WithFields(logrus.Fields{
			"code":   int(outcome.Code),
			"wipe":   outcome.Wipe,
			"reason": outcome.Reason,
		})
		if outcome.Code == models.ExitOK {
			log.Info("Terminating")
		} else {
			log.Error("Terminating")
		}

		c.setPhase(models.PhaseTerminating)
		c.cancelPhases()

		if errs := c.deps.Registry.CloseAll(); len(errs) > 0 {
			log.WithError(errors.Join(errs...)).Warn("Some browsers failed to close")
		}

		if outcome.Wipe {
			if err := c.deps.Profile.Wipe(); err != nil {
				log.WithError(err).Error("Failed to wipe profile")
			}
		}

		if final != models.PhaseTerminating {
			c.setPhase(final)
		}

		c.deps.Metrics.Restarted(int(outcome.Code), outcome.Wipe)
		c.outcome.Store(&outcome)
		close(c.done)
	})

	if !fired {
		c.log.WithField("reason", outcome.Reason).Debug("Ignoring termination request after shutdown")
	}
}
