package moderation

import "errors"

// Error taxonomy of the moderation loop. Feed adapters translate provider
// errors into these sentinels (wrapping preserves the raw payload for logs);
// the loop decides fatal vs transient by errors.Is.
var (
	// ErrUnresolvableURL: the input URL carries no recognizable video id. Fatal.
	ErrUnresolvableURL = errors.New("no video id found in url")
	// ErrChatEnded: the provider signalled the live chat is over. Graceful terminal.
	ErrChatEnded = errors.New("live chat ended")
	// ErrChatUnavailable: the video exists but carries no active live chat.
	// Graceful terminal (the stream may not be live, or chat is disabled).
	ErrChatUnavailable = errors.New("live chat unavailable")
)
