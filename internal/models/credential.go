package models

import (
	"encoding/json"
	"fmt"
)

// Credential is a decrypted service-account key.
type Credential struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`

	raw []byte
}

func NewCredential(raw []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse service credential: %w", err)
	}
	if len(cred.ProjectID) == 0 {
		return nil, fmt.Errorf("service credential has no project_id")
	}
	cred.raw = raw
	return &cred, nil
}

// JSON returns the original key material.
func (c *Credential) JSON() []byte {
	return c.raw
}
