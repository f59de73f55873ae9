package models

import (
	"crypto/subtle"
	"slices"
	"strings"
)

// RemoteConfig is the sensitive per-kiosk configuration record. A captured
// value is never mutated; a differing snapshot forces a restart.
type RemoteConfig struct {
	RemoteBaseURL string   `json:"remoteBaseUrl" yaml:"remoteBaseUrl" firestore:"remoteBaseUrl"`
	ExternalEmail string   `json:"externalEmail" yaml:"externalEmail" firestore:"externalEmail"`
	ExternalPass  string   `json:"externalPass" yaml:"externalPass" firestore:"externalPass"`
	Blacklist     []string `json:"blacklist" yaml:"blacklist" firestore:"blacklist"`
}

// Equal compares all four fields. Blacklists are compared as ordered
// sequences.
func (c RemoteConfig) Equal(other RemoteConfig) bool {
	return c.RemoteBaseURL == other.RemoteBaseURL &&
		c.ExternalEmail == other.ExternalEmail &&
		c.ExternalPass == other.ExternalPass &&
		slices.Equal(c.Blacklist, other.Blacklist)
}

// DispatchURL is the landing page of the remote application.
func (c RemoteConfig) DispatchURL() string {
	return strings.TrimRight(c.RemoteBaseURL, "/") + "/dispatch"
}

// String never prints credentials.
func (c RemoteConfig) String() string {
	return "RemoteConfig{" + c.RemoteBaseURL + "}"
}

type InternalUser struct {
	User string `json:"user" yaml:"user" firestore:"user"`
	Pass string `json:"pass" yaml:"pass" firestore:"pass"`
}

// InternalUserSet is ordered; the first matching pair wins.
type InternalUserSet []InternalUser

func (s InternalUserSet) Equal(other InternalUserSet) bool {
	return slices.Equal(s, other)
}

// Match reports whether the exact, case-sensitive pair is present.
func (s InternalUserSet) Match(user, pass string) bool {
	for _, candidate := range s {
		userOK := subtle.ConstantTimeCompare([]byte(candidate.User), []byte(user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(candidate.Pass), []byte(pass)) == 1
		if userOK && passOK {
			return true
		}
	}
	return false
}

type SessionPhase int32

const (
	PhaseUninitialized SessionPhase = iota
	PhasePreAuth
	PhaseKioskGate
	PhaseFullSession
	PhaseTerminating
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhasePreAuth:
		return "pre_auth"
	case PhaseKioskGate:
		return "kiosk_gate"
	case PhaseFullSession:
		return "full_session"
	case PhaseTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

type ExitCode int

const (
	ExitOK    ExitCode = 0
	ExitFatal ExitCode = 1
)

// Outcome is the terminal decision of a run.
type Outcome struct {
	Code   ExitCode `json:"code"`
	Wipe   bool     `json:"wipe"`
	Reason string   `json:"reason"`
}
