// Package oauth provides token refresh scheduling for providers whose tokens
// are persisted in the oauth_tokens table. It performs jittered checks and
// refreshes when expiry falls within a configured window. Repeated refresh
// failure is a credential problem the loop cannot recover from, so after a
// bounded number of consecutive failures the refresher reports fatally via
// the OnFatal callback.
package oauth

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// Refresher periodically checks one oauth token row and refreshes it.
type Refresher struct {
	DB       *sql.DB
	Provider string        // key in oauth_tokens table
	Interval time.Duration // how often to wake up and check
	Window   time.Duration // refresh when remaining lifetime <= window
	Refresh  RefreshFunc

	// MaxFailures bounds consecutive refresh failures before OnFatal fires.
	// Zero means 5.
	MaxFailures int
	// OnFatal is called at most once, from the refresher goroutine, when the
	// failure budget is exhausted. Typically cancels the root context.
	OnFatal func(err error)
}

// Start launches the refresher goroutine. It returns immediately.
func (r *Refresher) Start(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := r.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	maxFailures := r.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		failures := 0
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			row := r.DB.QueryRowContext(ctx, `SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE provider=$1 LIMIT 1`, r.Provider)
			var at, rt, scope string
			var exp time.Time
			if err := row.Scan(&at, &rt, &exp, &scope); err != nil {
				continue
			}
			if rt == "" {
				continue
			}
			if time.Until(exp) > window {
				failures = 0
				continue
			}
			ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
			newAT, newRT, newExp, newScope, err := r.Refresh(ctx2, rt)
			cancel()
			if err != nil {
				failures++
				slog.Warn("token refresh failed", slog.String("provider", r.Provider), slog.Int("consecutive_failures", failures), slog.Any("err", err))
				if failures >= maxFailures {
					err = fmt.Errorf("token refresh for %s failed %d times in a row: %w", r.Provider, failures, err)
					slog.Error("token refresh budget exhausted", slog.String("provider", r.Provider), slog.Any("err", err))
					if r.OnFatal != nil {
						r.OnFatal(err)
					}
					return
				}
				continue
			}
			failures = 0
			if newRT == "" {
				newRT = rt
			}
			if newScope == "" {
				newScope = scope
			}
			_, err = r.DB.ExecContext(ctx, `UPDATE oauth_tokens SET access_token=$1, refresh_token=$2, expires_at=$3, scope=$4, updated_at=NOW() WHERE provider=$5`,
				newAT, newRT, newExp, strings.TrimSpace(newScope), r.Provider)
			if err != nil {
				slog.Warn("token persist failed", slog.String("provider", r.Provider), slog.Any("err", err))
				continue
			}
			slog.Info("token refreshed", slog.String("provider", r.Provider))
		}
	}()
}
