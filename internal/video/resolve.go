package video

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ID is an 11 character YouTube video identifier.
type ID string

var ErrInvalidIdentifier = errors.New("invalid video identifier")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

const SHORT_LINK_HOST = "youtu.be"

var canonicalHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// path prefixes on the canonical hosts that carry the id as the next segment
var pathPrefixes = []string{"/shorts/", "/embed/", "/live/"}

// IsValid reports whether s is a well formed video id.
func IsValid(s string) bool {
	return idPattern.MatchString(s)
}

// Resolve extracts a video id from a bare id, a youtube.com watch URL or a
// youtu.be short link.
func Resolve(input string) (ID, error) {
	input = strings.TrimSpace(input)
	if IsValid(input) {
		return ID(input), nil
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("[VideoResolver] %w: %q: %v", ErrInvalidIdentifier, input, err)
	}

	var candidate string
	host := strings.ToLower(parsed.Hostname())
	switch {
	case canonicalHosts[host]:
		candidate = parsed.Query().Get("v")
		if candidate == "" {
			candidate = idFromPath(parsed.Path)
		}
	case host == SHORT_LINK_HOST:
		candidate = firstSegment(parsed.Path)
	default:
		return "", fmt.Errorf("[VideoResolver] %w: unsupported host in %q", ErrInvalidIdentifier, input)
	}

	if candidate == "" || !IsValid(candidate) {
		return "", fmt.Errorf("[VideoResolver] %w: no video id in %q", ErrInvalidIdentifier, input)
	}
	return ID(candidate), nil
}

func idFromPath(path string) string {
	for _, prefix := range pathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return firstSegment(strings.TrimPrefix(path, prefix))
		}
	}
	return ""
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return path
}

func (id ID) String() string {
	return string(id)
}
