package moderation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"chatwarden/telemetry"
)

const (
	defaultInterval = 5 * time.Second
	defaultPageSize = 50
	// transport retries while resolving the live chat id, before giving up
	defaultResolveAttempts = 3
)

// Feed is the provider boundary: list pages of messages and apply moderation
// actions. Implementations translate provider errors into the package's
// sentinels (ErrChatEnded, ErrChatUnavailable) so the loop stays
// provider-agnostic.
type Feed interface {
	ResolveLiveChatID(ctx context.Context, videoID string) (string, error)
	ListLiveChatMessages(ctx context.Context, chatID, pageToken string, pageSize int64) (Page, error)
	DeleteLiveChatMessage(ctx context.Context, messageID string) error
	BanAuthor(ctx context.Context, chatID, authorID string, duration time.Duration) error
	ListCommentThreads(ctx context.Context, videoID, pageToken string, pageSize int64) (Page, error)
	DeleteComment(ctx context.Context, commentID string) error
}

// ActionRecorder persists applied moderation actions (audit trail).
type ActionRecorder interface {
	RecordAction(ctx context.Context, session StreamSession, d Decision) error
}

// StreamLogger receives every fetched message and every enforced action,
// typically backed by an append-only transcript file.
type StreamLogger interface {
	Message(m ChatMessage)
	Action(d Decision)
}

// Moderator drives the poll/classify/enforce cycle for one stream.
// Zero-value durations and sizes fall back to sane defaults; Recorder and Log
// are optional.
type Moderator struct {
	Feed     Feed
	Pipeline *Pipeline
	Recorder ActionRecorder
	Log      StreamLogger

	Interval time.Duration
	PageSize int64
	// DryRun logs and records decisions without calling delete/ban endpoints.
	DryRun bool

	ResolveAttempts int
}

func (m *Moderator) interval() time.Duration {
	if m.Interval > 0 {
		return m.Interval
	}
	return defaultInterval
}

func (m *Moderator) pageSize() int64 {
	if m.PageSize > 0 {
		return m.PageSize
	}
	return defaultPageSize
}

// Run moderates the live chat of the stream at rawURL until the chat ends,
// the context is cancelled, or resolution fails. A stream without an active
// live chat is not an error: the loop logs and returns nil.
func (m *Moderator) Run(ctx context.Context, rawURL string) error {
	videoID, err := ExtractVideoID(rawURL)
	if err != nil {
		return err
	}
	session, err := m.resolve(ctx, videoID)
	if err != nil {
		if errors.Is(err, ErrChatUnavailable) {
			slog.Info("no active live chat for video, nothing to moderate", slog.String("video_id", videoID))
			return nil
		}
		return err
	}
	slog.Info("moderating live chat",
		slog.String("video_id", session.VideoID),
		slog.String("chat_id", session.ChatID),
		slog.Bool("dry_run", m.DryRun))

	cursor := NewLiveCursor()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var page Page
		var listErr error
		telemetry.TimeFunc(telemetry.PollDuration, func() {
			page, listErr = m.Feed.ListLiveChatMessages(ctx, session.ChatID, cursor.Token(), m.pageSize())
		})
		if listErr != nil {
			if errors.Is(listErr, ErrChatEnded) {
				slog.Info("live chat ended, shutting down", slog.String("video_id", session.VideoID))
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			incr(telemetry.PollFailures)
			slog.Warn("chat poll failed, retrying with same page token",
				slog.String("chat_id", session.ChatID),
				slog.String("error", listErr.Error()))
			if err := sleepCtx(ctx, m.interval()); err != nil {
				return err
			}
			continue
		}

		incr(telemetry.PollCycles)
		telemetry.SetLastBatchSize(len(page.Messages))
		m.logMessages(page.Messages)

		spanCtx, span := telemetry.StartSpan(ctx, "chatwarden/moderation", "moderate_batch",
			attribute.String("video_id", session.VideoID),
			attribute.Int("batch_size", len(page.Messages)))
		decisions := m.Pipeline.Process(spanCtx, page.Messages)
		m.applyLive(spanCtx, session, decisions)
		telemetry.SetSpanSuccess(span)
		span.End()

		cursor.Advance(page.NextPageToken)
		if err := sleepCtx(ctx, m.interval()); err != nil {
			return err
		}
	}
}

// RunComments moderates the finite comment section of a VOD: page through all
// comment threads, delete violating top-level comments, terminate when the
// listing is exhausted or maxComments (0 = unlimited) have been scanned.
// Comment authors are not bannable through this surface, so enforcement is
// delete-only.
func (m *Moderator) RunComments(ctx context.Context, rawURL string, maxComments int) error {
	videoID, err := ExtractVideoID(rawURL)
	if err != nil {
		return err
	}
	session := StreamSession{VideoID: videoID}
	slog.Info("moderating comment threads", slog.String("video_id", videoID), slog.Bool("dry_run", m.DryRun))

	cursor := NewFiniteCursor()
	scanned := 0
	for !cursor.Exhausted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, listErr := m.Feed.ListCommentThreads(ctx, videoID, cursor.Token(), m.pageSize())
		if listErr != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			incr(telemetry.PollFailures)
			slog.Warn("comment listing failed, retrying",
				slog.String("video_id", videoID),
				slog.String("error", listErr.Error()))
			if err := sleepCtx(ctx, m.interval()); err != nil {
				return err
			}
			continue
		}

		incr(telemetry.PollCycles)
		telemetry.SetLastBatchSize(len(page.Messages))
		m.logMessages(page.Messages)

		for _, d := range m.Pipeline.Process(ctx, page.Messages) {
			if d.Action.Kind != ActionDeleteAndBan {
				continue
			}
			if m.Log != nil {
				m.Log.Action(d)
			}
			if m.DryRun {
				slog.Info("dry run: would delete comment",
					slog.String("comment_id", d.Action.MessageID),
					slog.String("author", d.Message.AuthorName),
					slog.String("reason", d.Action.Reason))
				m.record(ctx, session, d)
				continue
			}
			if err := m.Feed.DeleteComment(ctx, d.Action.MessageID); err != nil {
				incr(telemetry.DeletesFailed)
				slog.Error("delete comment failed",
					slog.String("comment_id", d.Action.MessageID),
					slog.String("error", err.Error()))
			} else {
				incr(telemetry.DeletesSucceeded)
			}
			m.record(ctx, session, d)
		}

		scanned += len(page.Messages)
		if maxComments > 0 && scanned >= maxComments {
			slog.Info("comment scan limit reached", slog.Int("scanned", scanned))
			return nil
		}
		cursor.Advance(page.NextPageToken)
		if cursor.Exhausted() {
			break
		}
		if err := sleepCtx(ctx, m.interval()); err != nil {
			return err
		}
	}
	slog.Info("comment threads drained", slog.String("video_id", videoID), slog.Int("scanned", scanned))
	return nil
}

// resolve turns a video id into a live session, retrying transport errors a
// few times before giving up.
func (m *Moderator) resolve(ctx context.Context, videoID string) (StreamSession, error) {
	attempts := m.ResolveAttempts
	if attempts <= 0 {
		attempts = defaultResolveAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		chatID, err := m.Feed.ResolveLiveChatID(ctx, videoID)
		if err == nil {
			if chatID == "" {
				return StreamSession{}, ErrChatUnavailable
			}
			return StreamSession{VideoID: videoID, ChatID: chatID}, nil
		}
		if errors.Is(err, ErrChatUnavailable) || ctx.Err() != nil {
			return StreamSession{}, err
		}
		lastErr = err
		slog.Warn("resolving live chat id failed",
			slog.String("video_id", videoID),
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		if i < attempts-1 {
			if err := sleepCtx(ctx, m.interval()); err != nil {
				return StreamSession{}, err
			}
		}
	}
	return StreamSession{}, lastErr
}

// applyLive enforces decisions in order: delete the message, then ban its
// author. A failed delete still proceeds to the ban; individual failures are
// logged and counted, never fatal to the loop.
func (m *Moderator) applyLive(ctx context.Context, session StreamSession, decisions []Decision) {
	for _, d := range decisions {
		if d.Action.Kind != ActionDeleteAndBan {
			continue
		}
		if m.Log != nil {
			m.Log.Action(d)
		}
		if m.DryRun {
			slog.Info("dry run: would delete message and ban author",
				slog.String("message_id", d.Action.MessageID),
				slog.String("author", d.Message.AuthorName),
				slog.String("reason", d.Action.Reason))
			m.record(ctx, session, d)
			continue
		}

		if err := m.Feed.DeleteLiveChatMessage(ctx, d.Action.MessageID); err != nil {
			incr(telemetry.DeletesFailed)
			slog.Error("delete message failed",
				slog.String("message_id", d.Action.MessageID),
				slog.String("error", err.Error()))
		} else {
			incr(telemetry.DeletesSucceeded)
			slog.Info("deleted message",
				slog.String("message_id", d.Action.MessageID),
				slog.String("author", d.Message.AuthorName),
				slog.String("reason", d.Action.Reason))
		}

		if err := m.Feed.BanAuthor(ctx, session.ChatID, d.Action.AuthorID, d.Action.BanDuration); err != nil {
			incr(telemetry.BansFailed)
			slog.Error("ban author failed",
				slog.String("author_id", d.Action.AuthorID),
				slog.String("error", err.Error()))
		} else {
			incr(telemetry.BansSucceeded)
			slog.Info("banned author",
				slog.String("author_id", d.Action.AuthorID),
				slog.String("author", d.Message.AuthorName),
				slog.Duration("duration", d.Action.BanDuration))
		}

		m.record(ctx, session, d)
	}
}

func (m *Moderator) record(ctx context.Context, session StreamSession, d Decision) {
	if m.Recorder == nil {
		return
	}
	if err := m.Recorder.RecordAction(ctx, session, d); err != nil {
		slog.Error("recording moderation action failed",
			slog.String("message_id", d.Action.MessageID),
			slog.String("error", err.Error()))
	}
}

func (m *Moderator) logMessages(msgs []ChatMessage) {
	if m.Log == nil {
		return
	}
	for _, msg := range msgs {
		m.Log.Message(msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
