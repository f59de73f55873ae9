// Package profile manages the persisted browser profile directory shared
// by every phase.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Profile struct {
	fs   afero.Fs
	path string
}

func New(fs afero.Fs, path string) *Profile {
	return &Profile{fs: fs, path: filepath.Clean(path)}
}

// NewOS resolves path against the working directory so that every
// browser launch sees the same directory.
func NewOS(path string) (*Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile path: %w", err)
	}
	return New(afero.NewOsFs(), abs), nil
}

func (p *Profile) Path() string {
	return p.path
}

func (p *Profile) Ensure() error {
	if err := p.fs.MkdirAll(p.path, 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	return nil
}

func (p *Profile) Exists() bool {
	info, err := p.fs.Stat(p.path)
	return err == nil && info.IsDir()
}

// Wipe removes the directory and everything in it. A missing directory is
// not an error.
func (p *Profile) Wipe() error {
	if len(p.path) == 0 || p.path == "." || p.path == string(os.PathSeparator) {
		return fmt.Errorf("refusing to wipe profile at %q", p.path)
	}

	if err := p.fs.RemoveAll(p.path); err != nil {
		return fmt.Errorf("failed to wipe profile: %w", err)
	}

	logrus.WithField("path", p.path).Info("Profile wiped")
	return nil
}
