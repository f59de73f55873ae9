// Package credentials decrypts the service-account key bundle that
// authenticates the remote config streams.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kioskd/kioskd/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var ErrMissingSecret = errors.New("missing secret material")

// Secrets is the encoded key material as found in the environment.
type Secrets struct {
	Key        string
	IV         string
	Tag        string
	Ciphertext string
	Salt       string
}

// Configured reports whether any secret was provided.
func (s Secrets) Configured() bool {
	return len(s.Key) > 0 || len(s.IV) > 0 || len(s.Tag) > 0 || len(s.Ciphertext) > 0
}

func (s Secrets) validate() error {
	var missing []string
	if len(s.Key) == 0 {
		missing = append(missing, "key")
	}
	if len(s.IV) == 0 {
		missing = append(missing, "iv")
	}
	if len(s.Tag) == 0 {
		missing = append(missing, "tag")
	}
	if len(s.Ciphertext) == 0 {
		missing = append(missing, "ciphertext")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingSecret, missing)
	}
	return nil
}

type Option func(*Supplier)

func WithFs(fs afero.Fs) Option {
	return func(s *Supplier) { s.fs = fs }
}

func WithSecretFetcher(fetch SecretFetcher) Option {
	return func(s *Supplier) { s.fetch = fetch }
}

// Supplier decrypts the credential once and caches the result, errors
// included.
type Supplier struct {
	secrets Secrets
	fs      afero.Fs
	fetch   SecretFetcher

	once sync.Once
	cred *models.Credential
	err  error
}

func NewSupplier(secrets Secrets, opts ...Option) *Supplier {
	s := &Supplier{
		secrets: secrets,
		fs:      afero.NewOsFs(),
		fetch:   accessSecretVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supplier) Configured() bool {
	return s.secrets.Configured()
}

func (s *Supplier) Credential(ctx context.Context) (*models.Credential, error) {
	s.once.Do(func() {
		s.cred, s.err = s.decrypt(ctx)
	})
	return s.cred, s.err
}

func (s *Supplier) decrypt(ctx context.Context) (*models.Credential, error) {
	if err := s.secrets.validate(); err != nil {
		return nil, err
	}

	iv, err := decodeMaterial(s.secrets.IV)
	if err != nil {
		return nil, fmt.Errorf("failed to decode iv: %w", err)
	}

	tag, err := decodeMaterial(s.secrets.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to decode auth tag: %w", err)
	}

	ciphertext, err := s.loadCiphertext(ctx, s.secrets.Ciphertext)
	if err != nil {
		return nil, err
	}

	key := deriveKey(s.secrets.Key, []byte(s.secrets.Salt))
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	plaintext, err := open(key, Bundle{IV: iv, Tag: tag, Ciphertext: ciphertext})
	if err != nil {
		return nil, err
	}

	cred, err := models.NewCredential(plaintext)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"project": cred.ProjectID,
		"account": cred.ClientEmail,
	}).Info("Service credential decrypted")

	return cred, nil
}
