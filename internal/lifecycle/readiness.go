package lifecycle

import "github.com/kioskd/kioskd/internal/models"

// readiness holds the first snapshot of each stream. The phase sequence
// starts only once both slots are filled.
type readiness struct {
	config *models.RemoteConfig
	users  *models.InternalUserSet
}

func (r *readiness) setConfig(cfg models.RemoteConfig) {
	r.config = &cfg
}

func (r *readiness) setUsers(users models.InternalUserSet) {
	copied := append(models.InternalUserSet(nil), users...)
	r.users = &copied
}

func (r *readiness) hasConfig() bool {
	return r.config != nil
}

func (r *readiness) hasUsers() bool {
	return r.users != nil
}

func (r *readiness) Ready() bool {
	return r.hasConfig() && r.hasUsers()
}
