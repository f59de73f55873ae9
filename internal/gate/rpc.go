package gate

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	VerifyBinding = "verifyLogin"
	SignalBinding = "signalAuth"
)

// Verifier checks a pair against the internal user set current at call
// time.
type Verifier interface {
	Verify(user, pass string) bool
}

type credentialPair struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// Surface is the page-facing RPC: verifyCredentials and
// signalAuthenticated. A signal is only honoured after a successful
// verification on the same surface.
type Surface struct {
	verifier Verifier
	metrics  *metrics.Metrics

	failures atomic.Int64
	verified atomic.Bool

	once          sync.Once
	authenticated chan struct{}
}

func NewSurface(verifier Verifier, m *metrics.Metrics) *Surface {
	return &Surface{
		verifier:      verifier,
		metrics:       m,
		authenticated: make(chan struct{}),
	}
}

func (s *Surface) VerifyCredentials(user, pass string) bool {
	ok := s.verifier.Verify(user, pass)
	s.metrics.GateAttempt(ok)

	if !ok {
		logrus.WithField("failures", s.failures.Add(1)).Warn("Kiosk gate rejected credentials")
		return false
	}

	s.verified.Store(true)
	logrus.Info("Kiosk gate accepted credentials")
	return true
}

func (s *Surface) SignalAuthenticated() {
	if !s.verified.Load() {
		logrus.Warn("Ignoring authentication signal without a verified login")
		return
	}
	s.once.Do(func() { close(s.authenticated) })
}

// Authenticated closes once the gate is passed.
func (s *Surface) Authenticated() <-chan struct{} {
	return s.authenticated
}

func (s *Surface) Failures() int64 {
	return s.failures.Load()
}

func (s *Surface) handleVerify(arg json.RawMessage) (any, error) {
	var pair credentialPair
	if err := json.Unmarshal(arg, &pair); err != nil {
		s.metrics.GateAttempt(false)
		logrus.WithError(err).WithField("failures", s.failures.Add(1)).Warn("Kiosk gate received a malformed submission")
		return false, nil
	}
	return s.VerifyCredentials(pair.User, pair.Pass), nil
}

func (s *Surface) handleSignal(json.RawMessage) (any, error) {
	s.SignalAuthenticated()
	return nil, nil
}
