package blacklist

import (
	"net/url"
	"strings"
)

// DefaultEntry replaces an empty blacklist.
const DefaultEntry = "/profile"

// Blacklist is a set of substrings; a URL containing any of them is blocked.
type Blacklist struct {
	entries []string
}

// New keeps every entry as given. An empty string matches every URL, so a
// list holding one blocks everything.
func New(entries []string) Blacklist {
	if len(entries) == 0 {
		return Blacklist{entries: []string{DefaultEntry}}
	}
	return Blacklist{entries: append([]string(nil), entries...)}
}

func (b Blacklist) Entries() []string {
	if len(b.entries) == 0 {
		return []string{DefaultEntry}
	}
	return append([]string(nil), b.entries...)
}

// IsBlocked is plain substring containment against every entry.
func (b Blacklist) IsBlocked(u string) bool {
	for _, entry := range b.Entries() {
		if strings.Contains(u, entry) {
			return true
		}
	}
	return false
}

// Blocks checks the raw URL and its normalized form.
func (b Blacklist) Blocks(raw string) bool {
	if b.IsBlocked(raw) {
		return true
	}
	normalized := Normalize(raw)
	return normalized != raw && b.IsBlocked(normalized)
}

// Normalize lower-cases scheme and host and percent-decodes the path so
// that encoded variants of a blocked path compare equal. Unparseable input
// is returned as is.
func Normalize(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		if decoded, decodeErr := url.PathUnescape(raw); decodeErr == nil {
			return decoded
		}
		return raw
	}

	var sb strings.Builder
	if len(parsed.Scheme) > 0 {
		sb.WriteString(strings.ToLower(parsed.Scheme))
		sb.WriteString(":")
	}
	if len(parsed.Host) > 0 || strings.HasPrefix(raw, parsed.Scheme+"://") {
		sb.WriteString("//")
		sb.WriteString(strings.ToLower(parsed.Host))
	}
	if len(parsed.Opaque) > 0 {
		sb.WriteString(parsed.Opaque)
	}
	// Path is already decoded by url.Parse.
	sb.WriteString(cleanSlashes(parsed.Path))
	if len(parsed.RawQuery) > 0 {
		sb.WriteString("?")
		if query, err := url.QueryUnescape(parsed.RawQuery); err == nil {
			sb.WriteString(query)
		} else {
			sb.WriteString(parsed.RawQuery)
		}
	}
	return sb.String()
}

// cleanSlashes collapses repeated slashes ("//profile" becomes "/profile").
func cleanSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}
