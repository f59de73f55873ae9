package common

import (
	"net/url"
	"strings"
)

// IsValidURL accepts absolute http and https URLs only.
func IsValidURL(rawurl string) bool {
	parsed, err := url.ParseRequestURI(rawurl)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && len(parsed.Host) > 0
}
