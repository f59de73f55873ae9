package lifecycle

import (
	"sync"

	"github.com/kioskd/kioskd/internal/models"
)

// UserStore publishes the held internal user set to the kiosk gate.
type UserStore struct {
	mu    sync.RWMutex
	users models.InternalUserSet
}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) Set(users models.InternalUserSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(models.InternalUserSet(nil), users...)
}

func (s *UserStore) Get() models.InternalUserSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(models.InternalUserSet(nil), s.users...)
}

func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Verify checks an exact, case-sensitive pair against the current set.
func (s *UserStore) Verify(user, pass string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.Match(user, pass)
}
