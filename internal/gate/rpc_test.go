package gate

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/kioskd/kioskd/internal/models"
	"github.com/stretchr/testify/assert"
)

type mutableUsers struct {
	mu    sync.Mutex
	users models.InternalUserSet
}

func (m *mutableUsers) Verify(user, pass string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users.Match(user, pass)
}

func (m *mutableUsers) set(users models.InternalUserSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
}

func TestVerifyCredentialsIsExactAndCurrent(t *testing.T) {
	users := &mutableUsers{users: models.InternalUserSet{{User: "operator", Pass: "1234"}}}
	s := NewSurface(users, nil)

	tests := []struct {
		user, pass string
		want       bool
	}{
		{"operator", "1234", true},
		{"OPERATOR", "1234", false},
		{"operator", "12345", false},
		{" operator", "1234", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.VerifyCredentials(tt.user, tt.pass), "%q/%q", tt.user, tt.pass)
	}
	assert.Equal(t, int64(3), s.Failures())

	users.set(models.InternalUserSet{{User: "admin", Pass: "x"}})
	assert.False(t, s.VerifyCredentials("operator", "1234"))
	assert.True(t, s.VerifyCredentials("admin", "x"))
}

func TestSignalRequiresVerification(t *testing.T) {
	s := NewSurface(&mutableUsers{users: models.InternalUserSet{{User: "a", Pass: "b"}}}, nil)

	s.SignalAuthenticated()
	select {
	case <-s.Authenticated():
		t.Fatal("authenticated without verification")
	default:
	}

	s.VerifyCredentials("a", "b")
	s.SignalAuthenticated()
	s.SignalAuthenticated()

	select {
	case <-s.Authenticated():
	default:
		t.Fatal("expected authentication")
	}
}

func TestHandleVerifyMalformed(t *testing.T) {
	s := NewSurface(&mutableUsers{}, nil)

	result, err := s.handleVerify(json.RawMessage(`"not an object"`))
	assert.NoError(t, err)
	assert.Equal(t, false, result)
	assert.Equal(t, int64(1), s.Failures())
}
