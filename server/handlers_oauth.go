package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/tank-queue/db"
	"github.com/onnwee/tank-queue/telemetry"
	"github.com/onnwee/tank-queue/twitchapi"
)

// TwitchProvider is the oauth_tokens row the chat login is stored under.
const TwitchProvider = "twitch"

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.OAuth == nil || h.deps.OAuth.ClientID == "" || h.deps.OAuth.RedirectURL == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(10*time.Minute)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	authURL, err := twitchapi.BuildAuthorizeURL(h.deps.OAuth, st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the code and stores the bot account's tokens.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if h.deps.OAuth == nil || h.deps.DB == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	tok, err := twitchapi.ExchangeAuthCode(ctx, h.deps.OAuth, code)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Error("twitch code exchange failed", slog.Any("err", err), slog.String("component", "oauth"))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	row := db.OAuthToken{
		Provider:     TwitchProvider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       twitchapi.ComputeExpiry(tok),
		Scope:        twitchapi.Scope(tok),
	}
	if err := h.deps.DB.UpsertOAuthToken(ctx, row); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("store twitch token", slog.Any("err", err), slog.String("component", "oauth"))
		http.Error(w, "failed to store token", http.StatusInternalServerError)
		return
	}
	telemetry.LoggerWithCorr(ctx).Info("twitch token stored", slog.Time("expires_at", row.Expiry), slog.String("component", "oauth"))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scopes": row.Scope, "expires_at": row.Expiry})
}
