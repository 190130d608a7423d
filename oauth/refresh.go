// Package oauth provides generic token refresh scheduling for providers whose
// tokens are persisted in the oauth_tokens table. It performs jittered checks
// and refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/tank-queue/db"
)

// TokenStore reads and writes token rows; *db.DB implements it.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (db.OAuthToken, error)
	UpsertOAuthToken(ctx context.Context, tok db.OAuthToken) error
}

// RefreshFunc performs the provider-specific refresh grant.
type RefreshFunc func(ctx context.Context, refreshToken string) (db.OAuthToken, error)

// RefreshOnce refreshes provider's token when its remaining lifetime is within window.
// It reports whether a refresh happened.
func RefreshOnce(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	cur, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}
	if cur.RefreshToken == "" {
		return false, nil
	}
	if !cur.Expiry.IsZero() && time.Until(cur.Expiry) > window {
		return false, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	next, err := fn(ctx2, cur.RefreshToken)
	cancel()
	if err != nil {
		return false, fmt.Errorf("refresh: %w", err)
	}
	next.Provider = provider
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = cur.Scope
	}
	next.Scope = strings.TrimSpace(next.Scope)
	if err := store.UpsertOAuthToken(ctx, next); err != nil {
		return false, fmt.Errorf("persist token: %w", err)
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks an oauth token row and refreshes it.
// provider: key in oauth_tokens table.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			refreshed, err := RefreshOnce(ctx, store, provider, window, fn)
			switch {
			case err != nil:
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err), slog.String("component", "oauth"))
			case refreshed:
				slog.Info("token refreshed", slog.String("provider", provider), slog.String("component", "oauth"))
			}

			// ±20% of interval
			jitterRange := int64(interval/5) + 1
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := max(interval+jitter, interval/2)
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}
