package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatwarden/classifier"
)

type pageResult struct {
	page Page
	err  error
}

// fakeFeed scripts list responses and records every call in order.
type fakeFeed struct {
	mu           sync.Mutex
	chatID       string
	resolveErrs  []error
	pages        []pageResult
	commentPages []pageResult
	calls        []string
	deleteErr    error
}

func (f *fakeFeed) ResolveLiveChatID(ctx context.Context, videoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "resolve:"+videoID)
	if len(f.resolveErrs) > 0 {
		err := f.resolveErrs[0]
		f.resolveErrs = f.resolveErrs[1:]
		return "", err
	}
	return f.chatID, nil
}

func (f *fakeFeed) ListLiveChatMessages(ctx context.Context, chatID, token string, size int64) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list:"+token)
	if len(f.pages) == 0 {
		return Page{}, fmt.Errorf("poll chat: %w", ErrChatEnded)
	}
	r := f.pages[0]
	f.pages = f.pages[1:]
	return r.page, r.err
}

func (f *fakeFeed) DeleteLiveChatMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+messageID)
	return f.deleteErr
}

func (f *fakeFeed) BanAuthor(ctx context.Context, chatID, authorID string, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "ban:"+authorID)
	return nil
}

func (f *fakeFeed) ListCommentThreads(ctx context.Context, videoID, token string, size int64) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "comments:"+token)
	if len(f.commentPages) == 0 {
		return Page{}, nil
	}
	r := f.commentPages[0]
	f.commentPages = f.commentPages[1:]
	return r.page, r.err
}

func (f *fakeFeed) DeleteComment(ctx context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delcomment:"+commentID)
	return f.deleteErr
}

func (f *fakeFeed) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []Decision
}

func (r *fakeRecorder) RecordAction(ctx context.Context, session StreamSession, d Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, d)
	return nil
}

func violatingPipeline() *Pipeline {
	return &Pipeline{Classifier: classifierFunc(func(ctx context.Context, text string) (classifier.Verdict, error) {
		return classifier.Verdict{Violates: true, Reason: "rule"}, nil
	})}
}

func cleanPipeline() *Pipeline {
	return &Pipeline{Classifier: classifierFunc(func(ctx context.Context, text string) (classifier.Verdict, error) {
		return classifier.Verdict{}, nil
	})}
}

const liveURL = "https://www.youtube.com/live/abcDEFghi12"

func TestModeratorDeletesBeforeBanning(t *testing.T) {
	feed := &fakeFeed{
		chatID: "chat-1",
		pages: []pageResult{
			{page: Page{
				Messages: []ChatMessage{
					{ID: "m1", AuthorID: "a1", AuthorName: "troll", EventType: EventTextMessage, Text: "bad"},
				},
				NextPageToken: "t1",
			}},
		},
	}
	rec := &fakeRecorder{}
	m := &Moderator{Feed: feed, Pipeline: violatingPipeline(), Recorder: rec, Interval: time.Millisecond}

	if err := m.Run(context.Background(), liveURL); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := feed.callLog()
	di, bi := indexOf(calls, "delete:m1"), indexOf(calls, "ban:a1")
	if di < 0 || bi < 0 {
		t.Fatalf("missing delete or ban in calls: %v", calls)
	}
	if di > bi {
		t.Errorf("ban issued before delete: %v", calls)
	}
	if len(rec.recorded) != 1 || rec.recorded[0].Action.MessageID != "m1" {
		t.Errorf("recorder got %+v, want one action for m1", rec.recorded)
	}
}

func TestModeratorRetriesSameTokenOnTransportError(t *testing.T) {
	feed := &fakeFeed{
		chatID: "chat-1",
		pages: []pageResult{
			{page: Page{NextPageToken: "t1"}},
			{err: errors.New("503 backend error")},
			{page: Page{NextPageToken: "t2"}},
		},
	}
	m := &Moderator{Feed: feed, Pipeline: cleanPipeline(), Interval: time.Millisecond}
	if err := m.Run(context.Background(), liveURL); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var listCalls []string
	for _, c := range feed.callLog() {
		if len(c) >= 5 && c[:5] == "list:" {
			listCalls = append(listCalls, c)
		}
	}
	want := []string{"list:", "list:t1", "list:t1", "list:t2"}
	if len(listCalls) != len(want) {
		t.Fatalf("list calls = %v, want %v", listCalls, want)
	}
	for i := range want {
		if listCalls[i] != want[i] {
			t.Errorf("list call %d = %q, want %q", i, listCalls[i], want[i])
		}
	}
}

func TestModeratorStopsWhenChatEnds(t *testing.T) {
	feed := &fakeFeed{chatID: "chat-1"} // first list call reports chat ended
	m := &Moderator{Feed: feed, Pipeline: violatingPipeline(), Interval: time.Millisecond}
	if err := m.Run(context.Background(), liveURL); err != nil {
		t.Fatalf("Run after chat end = %v, want nil", err)
	}
	for _, c := range feed.callLog() {
		if c == "delete:m1" || c == "ban:a1" {
			t.Errorf("unexpected moderation call after chat end: %v", feed.callLog())
		}
	}
}

func TestModeratorNoActiveChat(t *testing.T) {
	feed := &fakeFeed{chatID: ""}
	m := &Moderator{Feed: feed, Pipeline: cleanPipeline(), Interval: time.Millisecond}
	if err := m.Run(context.Background(), liveURL); err != nil {
		t.Fatalf("Run without active chat = %v, want nil", err)
	}
	for _, c := range feed.callLog() {
		if c != "resolve:abcDEFghi12" {
			t.Errorf("unexpected call %q for chat-less video", c)
		}
	}
}

func TestModeratorResolveRetriesTransportErrors(t *testing.T) {
	feed := &fakeFeed{
		chatID:      "chat-1",
		resolveErrs: []error{errors.New("connection reset")},
	}
	m := &Moderator{Feed: feed, Pipeline: cleanPipeline(), Interval: time.Millisecond}
	if err := m.Run(context.Background(), liveURL); err != nil {
		t.Fatalf("Run: %v", err)
	}
	resolves := 0
	for _, c := range feed.callLog() {
		if c == "resolve:abcDEFghi12" {
			resolves++
		}
	}
	if resolves != 2 {
		t.Errorf("resolve attempts = %d, want 2", resolves)
	}
}

func TestModeratorUnresolvableURL(t *testing.T) {
	m := &Moderator{Feed: &fakeFeed{}, Pipeline: cleanPipeline()}
	err := m.Run(context.Background(), "https://example.com/nope")
	if !errors.Is(err, ErrUnresolvableURL) {
		t.Errorf("err = %v, want ErrUnresolvableURL", err)
	}
}

func TestModeratorDryRunSkipsEnforcement(t *testing.T) {
	feed := &fakeFeed{
		chatID: "chat-1",
		pages: []pageResult{
			{page: Page{Messages: []ChatMessage{
				{ID: "m1", AuthorID: "a1", EventType: EventTextMessage, Text: "bad"},
			}}},
		},
	}
	rec := &fakeRecorder{}
	m := &Moderator{Feed: feed, Pipeline: violatingPipeline(), Recorder: rec, Interval: time.Millisecond, DryRun: true}
	if err := m.Run(context.Background(), liveURL); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range feed.callLog() {
		if c == "delete:m1" || c == "ban:a1" {
			t.Fatalf("dry run must not enforce: %v", feed.callLog())
		}
	}
	if len(rec.recorded) != 1 {
		t.Errorf("dry run recorded %d actions, want 1", len(rec.recorded))
	}
}

func TestModeratorStopsOnContextCancel(t *testing.T) {
	feed := &fakeFeed{chatID: "chat-1"}
	// endless supply of empty pages keeps the loop alive until cancel
	for i := 0; i < 1000; i++ {
		feed.pages = append(feed.pages, pageResult{page: Page{NextPageToken: "t"}})
	}
	m := &Moderator{Feed: feed, Pipeline: cleanPipeline(), Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, liveURL) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("moderator did not stop after cancel")
	}
}

func TestRunCommentsDrainsFiniteListing(t *testing.T) {
	feed := &fakeFeed{
		commentPages: []pageResult{
			{page: Page{
				Messages: []ChatMessage{
					{ID: "c1", AuthorID: "a1", EventType: EventTextMessage, Text: "bad"},
					{ID: "c2", AuthorID: "a2", EventType: EventTextMessage, Text: "bad"},
				},
				NextPageToken: "p2",
			}},
			{page: Page{
				Messages: []ChatMessage{
					{ID: "c3", AuthorID: "a3", EventType: EventTextMessage, Text: "bad"},
				},
			}},
		},
	}
	m := &Moderator{Feed: feed, Pipeline: violatingPipeline(), Interval: time.Millisecond}
	if err := m.RunComments(context.Background(), "https://youtu.be/abcDEFghi12", 0); err != nil {
		t.Fatalf("RunComments: %v", err)
	}

	calls := feed.callLog()
	for _, want := range []string{"comments:", "comments:p2", "delcomment:c1", "delcomment:c2", "delcomment:c3"} {
		if indexOf(calls, want) < 0 {
			t.Errorf("missing call %q in %v", want, calls)
		}
	}
	for _, c := range calls {
		if len(c) >= 4 && c[:4] == "ban:" {
			t.Errorf("comment moderation must not ban: %v", calls)
		}
	}
}

func TestRunCommentsHonorsScanLimit(t *testing.T) {
	feed := &fakeFeed{}
	for i := 0; i < 10; i++ {
		feed.commentPages = append(feed.commentPages, pageResult{page: Page{
			Messages:      []ChatMessage{{ID: fmt.Sprintf("c%d", i), EventType: EventTextMessage, Text: "x"}},
			NextPageToken: fmt.Sprintf("p%d", i+1),
		}})
	}
	m := &Moderator{Feed: feed, Pipeline: cleanPipeline(), Interval: time.Millisecond}
	if err := m.RunComments(context.Background(), "https://youtu.be/abcDEFghi12", 3); err != nil {
		t.Fatalf("RunComments: %v", err)
	}
	pageFetches := 0
	for _, c := range feed.callLog() {
		if len(c) >= 9 && c[:9] == "comments:" {
			pageFetches++
		}
	}
	if pageFetches != 3 {
		t.Errorf("page fetches = %d, want 3 (one message per page, limit 3)", pageFetches)
	}
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}
