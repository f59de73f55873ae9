package common

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGetKioskIdentifier(t *testing.T) {
	id := GetKioskIdentifier()
	assert.NotEqual(t, uuid.Nil, id)
}
