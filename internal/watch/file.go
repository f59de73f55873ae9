package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/sirupsen/logrus"
)

type FileOptions struct {
	// Root is prepended to relative subscription paths.
	Root     string
	Debounce time.Duration
}

// fileService watches local YAML or JSON files. The parent directory is
// watched so that atomic renames and deletions are seen.
type fileService struct {
	root     string
	debounce time.Duration
}

func NewFile(opts FileOptions) (Service, error) {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &fileService{root: opts.Root, debounce: debounce}, nil
}

func (s *fileService) resolve(path string) string {
	if filepath.IsAbs(path) || len(s.root) == 0 {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

// readFile returns nil data with no error when the file does not exist.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (s *fileService) SubscribeDocument(ctx context.Context, path string) (<-chan DocumentEvent, error) {
	events := make(chan DocumentEvent)

	emit := func(data []byte, err error) bool {
		if err != nil {
			return send(ctx, events, DocumentEvent{Err: fmt.Errorf("failed to read config file: %w", err)})
		}
		if data == nil {
			return send(ctx, events, DocumentEvent{})
		}
		cfg, err := decodeConfig(data)
		return send(ctx, events, DocumentEvent{Config: cfg, Err: err})
	}

	fail := func(err error) {
		send(ctx, events, DocumentEvent{Err: err})
	}

	if err := s.watch(ctx, s.resolve(path), emit, fail, func() { close(events) }); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *fileService) SubscribeCollection(ctx context.Context, path string) (<-chan CollectionEvent, error) {
	events := make(chan CollectionEvent)

	emit := func(data []byte, err error) bool {
		if err != nil {
			return send(ctx, events, CollectionEvent{Err: fmt.Errorf("failed to read user file: %w", err)})
		}
		if data == nil {
			return send(ctx, events, CollectionEvent{Users: models.InternalUserSet{}})
		}
		users, err := decodeUsers(data)
		return send(ctx, events, CollectionEvent{Users: users, Err: err})
	}

	fail := func(err error) {
		send(ctx, events, CollectionEvent{Err: err})
	}

	if err := s.watch(ctx, s.resolve(path), emit, fail, func() { close(events) }); err != nil {
		return nil, err
	}
	return events, nil
}

// watch emits the current content of file, then its content after every
// settled change. emit returning false stops the watch.
func (s *fileService) watch(ctx context.Context, file string, emit func([]byte, error) bool, fail func(error), done func()) error {
	dir := filepath.Dir(file)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer done()
		defer watcher.Close()

		if !emit(readFile(file)) {
			return
		}

		var settle <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) == dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					fail(fmt.Errorf("watched directory %s disappeared", dir))
					return
				}

				if filepath.Clean(event.Name) != file {
					continue
				}

				logrus.WithFields(logrus.Fields{
					"event": event.Op.String(),
					"file":  event.Name,
				}).Debug("Watched file changed")

				// Wait for the writer to settle before reading
				settle = time.After(s.debounce)

			case <-settle:
				settle = nil
				if !emit(readFile(file)) {
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("File watcher error")
			}
		}
	}()

	return nil
}

func (s *fileService) Close() error {
	return nil
}
