// Package watch streams the remote kiosk configuration and internal user
// set from one of several backends.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kioskd/kioskd/internal/common"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownBackend    = errors.New("unknown watch backend")
	ErrMalformedDocument = errors.New("malformed config document")
)

const (
	BackendFirestore = "firestore"
	BackendFile      = "file"
	BackendHTTP      = "http"
	BackendMemory    = "memory"
)

// DocumentEvent carries one config snapshot. A nil Config with a nil Err
// means the document does not exist.
type DocumentEvent struct {
	Config *models.RemoteConfig
	Err    error
}

type CollectionEvent struct {
	Users models.InternalUserSet
	Err   error
}

// Service delivers snapshots in order per subscription. Channels close when
// ctx is cancelled or after a terminal error event.
type Service interface {
	SubscribeDocument(ctx context.Context, path string) (<-chan DocumentEvent, error)
	SubscribeCollection(ctx context.Context, path string) (<-chan CollectionEvent, error)
	Close() error
}

type Options struct {
	Backend   string
	Firestore FirestoreOptions
	File      FileOptions
	HTTP      HTTPOptions
}

// RequiresCredential reports whether the backend authenticates with the
// decrypted service credential.
func (o Options) RequiresCredential() bool {
	return strings.EqualFold(o.Backend, BackendFirestore)
}

func New(ctx context.Context, opts Options, cred *models.Credential) (Service, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendFirestore:
		return NewFirestore(ctx, cred, opts.Firestore)
	case BackendFile:
		return NewFile(opts.File)
	case BackendHTTP:
		return NewHTTP(opts.HTTP)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func send[E any](ctx context.Context, ch chan<- E, ev E) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func decodeConfig(data []byte) (*models.RemoteConfig, error) {
	cfg, err := common.DecodeDocument[models.RemoteConfig](data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return cfg, nil
}

func decodeUsers(data []byte) (models.InternalUserSet, error) {
	users, err := common.DecodeDocument[[]models.InternalUser](data)
	if err != nil {
		return nil, fmt.Errorf("malformed user set: %w", err)
	}
	return sanitizeUsers(*users), nil
}

// sanitizeUsers drops entries without a user name or password so that an
// empty form submission can never match.
func sanitizeUsers(users []models.InternalUser) models.InternalUserSet {
	result := make(models.InternalUserSet, 0, len(users))
	for i, user := range users {
		if len(user.User) == 0 || len(user.Pass) == 0 {
			logrus.WithField("index", i).Warn("Ignoring internal user without credentials")
			continue
		}
		result = append(result, user)
	}
	return result
}
