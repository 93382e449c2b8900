package youtubeapi

import (
	"context"
	"fmt"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"chatwarden/moderation"
)

// Feed implements moderation.Feed against the YouTube Data API v3.
type Feed struct {
	svc *Service
}

func NewFeed(svc *Service) *Feed { return &Feed{svc: svc} }

// ResolveLiveChatID looks up the active live chat id for a video. Returns
// ("", nil) when the video exists but carries no active chat; wraps
// moderation.ErrChatUnavailable when the video itself is unknown.
func (f *Feed) ResolveLiveChatID(ctx context.Context, videoID string) (string, error) {
	client, err := f.svc.Client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("look up video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("video %s not found: %w", videoID, moderation.ErrChatUnavailable)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", nil
	}
	return details.ActiveLiveChatId, nil
}

// ListLiveChatMessages fetches one page of chat messages. A 403 with reason
// liveChatEnded comes back wrapped as moderation.ErrChatEnded.
func (f *Feed) ListLiveChatMessages(ctx context.Context, chatID, pageToken string, pageSize int64) (moderation.Page, error) {
	client, err := f.svc.Client(ctx)
	if err != nil {
		return moderation.Page{}, err
	}
	call := client.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).
		MaxResults(pageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		if isChatEnded(err) {
			return moderation.Page{}, fmt.Errorf("list chat messages: %w", moderation.ErrChatEnded)
		}
		return moderation.Page{}, fmt.Errorf("list chat messages: %w", err)
	}
	page := moderation.Page{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		page.Messages = append(page.Messages, mapChatItem(item))
	}
	return page, nil
}

func mapChatItem(item *yt.LiveChatMessage) moderation.ChatMessage {
	msg := moderation.ChatMessage{ID: item.Id}
	if item.AuthorDetails != nil {
		msg.AuthorID = item.AuthorDetails.ChannelId
		msg.AuthorName = item.AuthorDetails.DisplayName
	}
	if item.Snippet != nil {
		msg.EventType = mapEventType(item.Snippet.Type)
		msg.Text = item.Snippet.DisplayMessage
	}
	return msg
}

func mapEventType(apiType string) moderation.EventType {
	switch apiType {
	case "textMessageEvent":
		return moderation.EventTextMessage
	case "newSponsorEvent":
		return moderation.EventSponsor
	case "sponsorOnlyModeEndedEvent":
		return moderation.EventSponsorEnd
	case "userBannedEvent":
		return moderation.EventBan
	default:
		return moderation.EventOther
	}
}

// DeleteLiveChatMessage removes a single chat message.
func (f *Feed) DeleteLiveChatMessage(ctx context.Context, messageID string) error {
	client, err := f.svc.Client(ctx)
	if err != nil {
		return err
	}
	if err := client.LiveChatMessages.Delete(messageID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete chat message %s: %w", messageID, err)
	}
	return nil
}

// BanAuthor bans a channel from the chat, permanently when duration is zero
// and as a timeout otherwise. An already-banned author is not an error.
func (f *Feed) BanAuthor(ctx context.Context, chatID, authorID string, duration time.Duration) error {
	client, err := f.svc.Client(ctx)
	if err != nil {
		return err
	}
	ban := &yt.LiveChatBan{
		Snippet: &yt.LiveChatBanSnippet{
			LiveChatId:        chatID,
			Type:              "permanent",
			BannedUserDetails: &yt.ChannelProfileDetails{ChannelId: authorID},
		},
	}
	if duration > 0 {
		ban.Snippet.Type = "temporary"
		ban.Snippet.BanDurationSeconds = uint64(duration.Seconds())
	}
	if _, err := client.LiveChatBans.Insert([]string{"snippet"}, ban).Context(ctx).Do(); err != nil {
		if isAlreadyBanned(err) {
			return nil
		}
		return fmt.Errorf("ban author %s: %w", authorID, err)
	}
	return nil
}

// ListCommentThreads fetches one page of top-level comments for a video.
func (f *Feed) ListCommentThreads(ctx context.Context, videoID, pageToken string, pageSize int64) (moderation.Page, error) {
	client, err := f.svc.Client(ctx)
	if err != nil {
		return moderation.Page{}, err
	}
	call := client.CommentThreads.List([]string{"snippet"}).
		VideoId(videoID).MaxResults(pageSize).TextFormat("plainText").Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return moderation.Page{}, fmt.Errorf("list comment threads: %w", err)
	}
	page := moderation.Page{NextPageToken: resp.NextPageToken}
	for _, thread := range resp.Items {
		if thread.Snippet == nil || thread.Snippet.TopLevelComment == nil {
			continue
		}
		top := thread.Snippet.TopLevelComment
		msg := moderation.ChatMessage{ID: top.Id, EventType: moderation.EventTextMessage}
		if top.Snippet != nil {
			msg.Text = top.Snippet.TextDisplay
			msg.AuthorName = top.Snippet.AuthorDisplayName
			if top.Snippet.AuthorChannelId != nil {
				msg.AuthorID = top.Snippet.AuthorChannelId.Value
			}
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

// DeleteComment removes a single comment.
func (f *Feed) DeleteComment(ctx context.Context, commentID string) error {
	client, err := f.svc.Client(ctx)
	if err != nil {
		return err
	}
	if err := client.Comments.Delete(commentID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}
	return nil
}
