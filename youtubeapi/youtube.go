// Package youtubeapi wraps the YouTube Data API v3 with OAuth2 token
// persistence and implements the moderation feed on top of it.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"chatwarden/config"
)

const providerName = "youtube"

// refresh this long before the access token actually expires
const expiryWindow = 2 * time.Minute

// ErrNoToken means no OAuth token has been stored yet; the authorization flow
// has to be completed first.
var ErrNoToken = errors.New("no stored youtube oauth token; complete the authorization flow first")

// TokenStore persists OAuth tokens per provider. Implemented by
// db.TokenStoreAdapter.
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

// Service holds the OAuth2 config and token store for YouTube API access.
type Service struct {
	cfg   *config.Config
	store TokenStore
	oauth *oauth2.Config

	// BasePath overrides the Data API endpoint, used by tests to point the
	// generated client at a local server.
	BasePath string
}

// New builds a Service from config. Scopes may be comma or whitespace
// separated; force-ssl is the fallback since chat deletion and bans need it.
func New(cfg *config.Config, store TokenStore) *Service {
	scopes := parseScopes(cfg.YTScopes)
	if len(scopes) == 0 {
		scopes = []string{"https://www.googleapis.com/auth/youtube.force-ssl"}
	}
	return &Service{
		cfg:   cfg,
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			RedirectURL:  cfg.YTRedirectURI,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

func parseScopes(raw string) []string {
	var scopes []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		if s := strings.TrimSpace(part); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// AuthCodeURL returns the consent URL for the authorization code flow.
// Offline access with forced consent so a refresh token is always issued.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens and persists them.
func (s *Service) Exchange(ctx context.Context, code string) error {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	scope := strings.Join(s.oauth.Scopes, " ")
	if err := s.store.UpsertOAuthToken(ctx, providerName, tok.AccessToken, tok.RefreshToken, tok.Expiry, scope); err != nil {
		return fmt.Errorf("persist oauth token: %w", err)
	}
	return nil
}

// refreshIfNeeded loads the stored token and refreshes it when it is inside
// the expiry window, persisting any rotation.
func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, scope, err := s.store.GetOAuthToken(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", err)
	}
	if access == "" && refresh == "" {
		return nil, ErrNoToken
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if tok.AccessToken != "" && time.Until(tok.Expiry) > expiryWindow {
		return tok, nil
	}

	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh oauth token: %w", err)
	}
	if newTok.AccessToken != access {
		// the provider may rotate the refresh token as well
		rt := newTok.RefreshToken
		if rt == "" {
			rt = refresh
		}
		if err := s.store.UpsertOAuthToken(ctx, providerName, newTok.AccessToken, rt, newTok.Expiry, scope); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
	}
	return newTok, nil
}

// RefreshToken exchanges a refresh token for fresh credentials. Matches the
// oauth.RefreshFunc signature so the background refresher can use it.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (access, refresh string, expiry time.Time, scope string, err error) {
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("refresh youtube token: %w", err)
	}
	return tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " "), nil
}

// Client returns an authenticated YouTube API client. Built per call so each
// poll cycle picks up the freshest stored token.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	tok, err := s.refreshIfNeeded(ctx)
	if err != nil {
		return nil, err
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if s.BasePath != "" {
		opts = append(opts, option.WithEndpoint(s.BasePath))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build youtube client: %w", err)
	}
	return svc, nil
}
