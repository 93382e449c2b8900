// Package moderation contains the core moderation loop: pagination state,
// the per-batch classification pipeline, and the decision/action model.
// Provider and classifier specifics stay behind the Feed and Classifier
// interfaces so the loop can be driven against fakes in tests.
package moderation

import "time"

// EventType identifies the kind of chat event a message represents.
// Only text messages are ever classified; everything else is a system
// event the pipeline skips.
type EventType int

const (
	EventTextMessage EventType = iota
	EventSponsor
	EventSponsorEnd
	EventBan
	EventOther
)

func (e EventType) String() string {
	switch e {
	case EventTextMessage:
		return "textMessage"
	case EventSponsor:
		return "sponsor"
	case EventSponsorEnd:
		return "sponsorEnd"
	case EventBan:
		return "ban"
	default:
		return "other"
	}
}

// ChatMessage is one fetched chat message or comment. Immutable once fetched;
// discarded after a single pipeline pass.
type ChatMessage struct {
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	EventType  EventType
}

// Page is one fetched page of messages plus the provider's continuation token.
// An empty NextPageToken means the provider returned no continuation value.
type Page struct {
	Messages      []ChatMessage
	NextPageToken string
}

// ActionKind tags the moderation outcome for one message.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionDeleteAndBan
)

func (k ActionKind) String() string {
	if k == ActionDeleteAndBan {
		return "delete_and_ban"
	}
	return "none"
}

// Action is the moderation decision derived from (event type, verdict).
type Action struct {
	Kind        ActionKind
	MessageID   string
	AuthorID    string
	BanDuration time.Duration // 0 = permanent
	Reason      string
}

// Decision pairs a message with the action derived for it.
type Decision struct {
	Message ChatMessage
	Action  Action
}

// StreamSession identifies the stream being moderated. Created once during
// resolution and immutable for the loop's lifetime. An empty ChatID means the
// video carries no active live chat.
type StreamSession struct {
	VideoID string
	ChatID  string
}
