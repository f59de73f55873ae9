package watch

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreOptions struct {
	// ProjectID overrides the project of the service credential.
	ProjectID  string
	DatabaseID string
}

type firestoreService struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, cred *models.Credential, opts FirestoreOptions) (Service, error) {
	if cred == nil {
		return nil, fmt.Errorf("firestore backend requires a service credential")
	}

	projectID := opts.ProjectID
	if len(projectID) == 0 {
		projectID = cred.ProjectID
	}

	clientOptions := []option.ClientOption{
		option.WithCredentialsJSON(cred.JSON()),
	}

	var (
		client *firestore.Client
		err    error
	)
	if len(opts.DatabaseID) > 0 {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, opts.DatabaseID, clientOptions...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, clientOptions...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	logrus.WithField("project", projectID).Info("Connected to Firestore")

	return &firestoreService{client: client}, nil
}

// listenerStopped reports whether err means the listener was shut down
// rather than failed.
func listenerStopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, iterator.Done) ||
		status.Code(err) == codes.Canceled
}

func (s *firestoreService) SubscribeDocument(ctx context.Context, path string) (<-chan DocumentEvent, error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid Firestore document path %q", path)
	}

	it := ref.Snapshots(ctx)
	events := make(chan DocumentEvent)

	go func() {
		defer close(events)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if listenerStopped(ctx, err) {
					return
				}
				send(ctx, events, DocumentEvent{Err: fmt.Errorf("config listener failed: %w", err)})
				return
			}

			if !snap.Exists() {
				if !send(ctx, events, DocumentEvent{}) {
					return
				}
				continue
			}

			var cfg models.RemoteConfig
			if err := snap.DataTo(&cfg); err != nil {
				if !send(ctx, events, DocumentEvent{Err: fmt.Errorf("%w: %v", ErrMalformedDocument, err)}) {
					return
				}
				continue
			}

			if !send(ctx, events, DocumentEvent{Config: &cfg}) {
				return
			}
		}
	}()

	return events, nil
}

func (s *firestoreService) SubscribeCollection(ctx context.Context, path string) (<-chan CollectionEvent, error) {
	ref := s.client.Collection(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid Firestore collection path %q", path)
	}

	it := ref.OrderBy(firestore.DocumentID, firestore.Asc).Snapshots(ctx)
	events := make(chan CollectionEvent)

	go func() {
		defer close(events)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if listenerStopped(ctx, err) {
					return
				}
				send(ctx, events, CollectionEvent{Err: fmt.Errorf("user listener failed: %w", err)})
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				if listenerStopped(ctx, err) {
					return
				}
				send(ctx, events, CollectionEvent{Err: fmt.Errorf("failed to read user snapshot: %w", err)})
				return
			}

			users := make([]models.InternalUser, 0, len(docs))
			for _, doc := range docs {
				var user models.InternalUser
				if err := doc.DataTo(&user); err != nil {
					logrus.WithError(err).WithField("doc", doc.Ref.ID).Warn("Ignoring malformed internal user")
					continue
				}
				users = append(users, user)
			}

			if !send(ctx, events, CollectionEvent{Users: sanitizeUsers(users)}) {
				return
			}
		}
	}()

	return events, nil
}

func (s *firestoreService) Close() error {
	return s.client.Close()
}
