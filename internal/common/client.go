package common

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// kioskIDApp scopes the protected machine id to kioskd.
const kioskIDApp = "kioskd"

// GetKioskIdentifier returns a stable UUID for this terminal, derived from
// the machine id. Machines without one get a random id per process.
func GetKioskIdentifier() uuid.UUID {

	id, err := machineid.ProtectedID(kioskIDApp)
	if err != nil {
		return uuid.New()
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
}
