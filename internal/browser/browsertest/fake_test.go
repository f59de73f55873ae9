package browsertest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kioskd/kioskd/internal/browser"
)

func TestFrameNavigatedNotifiesListeners(t *testing.T) {
	b := NewBrowser("b", browser.LaunchOptions{})
	page := b.OpenPage("about:blank")

	var first, second []string
	page.OnFrameNavigated(func(url string) { first = append(first, url) })
	page.OnFrameNavigated(func(url string) { second = append(second, url) })

	page.FrameNavigated("https://app.example.com/dispatch")

	assert.Equal(t, []string{"https://app.example.com/dispatch"}, first)
	assert.Equal(t, []string{"https://app.example.com/dispatch"}, second)
	assert.Equal(t, "https://app.example.com/dispatch", page.CurrentURL())
}

func TestFrameNavigatedIgnoredAfterClose(t *testing.T) {
	b := NewBrowser("b", browser.LaunchOptions{})
	page := b.OpenPage("about:blank")

	called := false
	page.OnFrameNavigated(func(string) { called = true })

	assert.NoError(t, page.Close())
	page.FrameNavigated("https://app.example.com/profile")

	assert.False(t, called)
}
