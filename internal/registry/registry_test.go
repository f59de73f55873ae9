package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/kioskd/kioskd/internal/browser"
	"github.com/kioskd/kioskd/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct {
	id     string
	closed int
	err    error
}

func (s *stubHandle) ID() string { return s.id }

func (s *stubHandle) Close() error {
	s.closed++
	return s.err
}

func TestRegisterAndCloseAll(t *testing.T) {
	r := New(nil)
	a := &stubHandle{id: "a"}
	b := &stubHandle{id: "b", err: errors.New("boom")}

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	assert.Equal(t, 2, r.Len())

	errs := r.CloseAll()
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, 0, r.Len())
}

func TestRegisterAfterCloseAllIsRejected(t *testing.T) {
	r := New(nil)
	r.CloseAll()

	late := &stubHandle{id: "late"}
	err := r.Register(late)

	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, late.closed)
	assert.Equal(t, 0, r.Len())
}

func TestUnregister(t *testing.T) {
	r := New(nil)
	h := &stubHandle{id: "a"}
	require.NoError(t, r.Register(h))

	r.Unregister(h)
	r.CloseAll()

	assert.Equal(t, 0, h.closed)
}

func TestLaunchRelease(t *testing.T) {
	r := New(nil)
	launcher := &browsertest.Launcher{}

	b, release, err := r.Launch(context.Background(), launcher, browser.LaunchOptions{Name: "preauth"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	release()
	release()

	assert.Equal(t, 0, r.Len())
	assert.True(t, b.(*browsertest.Browser).IsClosed())
}

func TestLaunchAfterCloseAll(t *testing.T) {
	r := New(nil)
	launcher := &browsertest.Launcher{}
	r.CloseAll()

	_, _, err := r.Launch(context.Background(), launcher, browser.LaunchOptions{Name: "gate"})
	assert.ErrorIs(t, err, ErrClosed)

	launched := launcher.Launched()
	require.Len(t, launched, 1)
	assert.True(t, launched[0].IsClosed())
}

func TestLaunchError(t *testing.T) {
	r := New(nil)
	launcher := &browsertest.Launcher{Err: errors.New("no chromium")}

	_, release, err := r.Launch(context.Background(), launcher, browser.LaunchOptions{Name: "full"})
	assert.Error(t, err)
	assert.Nil(t, release)
	assert.Equal(t, 0, r.Len())
}
