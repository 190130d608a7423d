package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/tank-queue/bot"
	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/db"
	"github.com/onnwee/tank-queue/store"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Database is the subset of *db.DB the handlers use.
type Database interface {
	PingContext(ctx context.Context) error
	GetOAuthToken(ctx context.Context, provider string) (db.OAuthToken, error)
	UpsertOAuthToken(ctx context.Context, tok db.OAuthToken) error
}

// SettingsKV stores cfg.* and msg.* overrides; *db.KV implements it.
type SettingsKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Config *config.Config
	DB     Database
	KV     SettingsKV
	Store  *store.StateStore
	Engine *bot.Engine
	// OAuth is the bot account's authorization code config; nil disables /auth/twitch.
	OAuth *oauth2.Config
}

func (d Deps) config() *config.Config {
	if d.Config == nil {
		return &config.Config{RateLimitEnabled: true, RateLimitRequests: 10, RateLimitWindow: time.Minute}
	}
	return d.Config
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps       Deps
	cfg        *config.Config
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		deps:       deps,
		cfg:        deps.config(),
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	// refusing new states fails the flow instead of growing without bound
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState reports whether state is known and unexpired, removing it.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}
