package moderation

import (
	"fmt"
	"regexp"
)

// YouTube video ids are exactly 11 characters of [A-Za-z0-9_-].
var (
	liveURLPattern  = regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/live/([a-zA-Z0-9_-]{11})`)
	watchURLPattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com/(?:watch\?v=|embed/|shorts/|v/|.*[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
)

// ExtractVideoID resolves a stream URL to a video id, trying the /live/ form
// first and the generic watch/embed/shorts/short-link forms second. Returns
// ErrUnresolvableURL when neither matches.
func ExtractVideoID(rawURL string) (string, error) {
	if m := liveURLPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	if m := watchURLPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvableURL, rawURL)
}
