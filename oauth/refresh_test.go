package oauth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chatwarden/testutil"
)

func TestRefresherSkipsTokenOutsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)

	futureExpiry := time.Now().Add(1 * time.Hour)
	_, err := db.Exec(`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider) DO UPDATE SET access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token, expires_at=EXCLUDED.expires_at`,
		"test-skip", "access123", "refresh456", futureExpiry, "scope1")
	if err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	var refreshCalled atomic.Bool
	r := &Refresher{
		DB:       db,
		Provider: "test-skip",
		Interval: 50 * time.Millisecond,
		Window:   30 * time.Minute,
		Refresh: func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			refreshCalled.Store(true)
			return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	r.Start(ctx)
	<-ctx.Done()

	if refreshCalled.Load() {
		t.Error("refresh should not have been called for a token expiring in 1 hour with a 30 min window")
	}
}

func TestRefresherRefreshesWithinWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)

	soonExpiry := time.Now().Add(5 * time.Minute)
	_, err := db.Exec(`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider) DO UPDATE SET access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token, expires_at=EXCLUDED.expires_at`,
		"test-window", "old-access", "old-refresh", soonExpiry, "scope1")
	if err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	var refreshCalled atomic.Bool
	r := &Refresher{
		DB:       db,
		Provider: "test-window",
		Interval: 50 * time.Millisecond,
		Window:   15 * time.Minute,
		Refresh: func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			if refreshToken != "old-refresh" {
				t.Errorf("refresh called with wrong token: got %s, want old-refresh", refreshToken)
			}
			refreshCalled.Store(true)
			return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope2", nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !refreshCalled.Load() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	if !refreshCalled.Load() {
		t.Fatal("refresh should have been called for token expiring within window")
	}

	var access string
	if err := db.QueryRow(`SELECT access_token FROM oauth_tokens WHERE provider='test-window'`).Scan(&access); err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if access != "new-access" {
		t.Errorf("persisted access token = %q, want new-access", access)
	}
}

func TestRefresherFatalAfterConsecutiveFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)

	soonExpiry := time.Now().Add(1 * time.Minute)
	_, err := db.Exec(`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider) DO UPDATE SET access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token, expires_at=EXCLUDED.expires_at`,
		"test-fatal", "old-access", "old-refresh", soonExpiry, "scope1")
	if err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	fatal := make(chan error, 1)
	r := &Refresher{
		DB:          db,
		Provider:    "test-fatal",
		Interval:    30 * time.Millisecond,
		Window:      15 * time.Minute,
		MaxFailures: 2,
		Refresh: func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			return "", "", time.Time{}, "", errors.New("invalid_grant")
		},
		OnFatal: func(err error) { fatal <- err },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	select {
	case err := <-fatal:
		if err == nil {
			t.Fatal("OnFatal called with nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnFatal was not called after repeated refresh failures")
	}
}
