// Command tank-queue runs the supporter token ledger and tank request queue for a
// Twitch channel.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres (or SQLite) and runs migrations.
//   - Joins Twitch chat and dispatches commands, rewards and support notices to the bot
//     engine, fulfilling or canceling redemptions through Helix when configured.
//   - Refreshes the stored Twitch OAuth token in the background.
//   - Exposes the HTTP API: health, status, metrics, overlay, config and admin actions.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/onnwee/tank-queue/bot"
	"github.com/onnwee/tank-queue/chat"
	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/db"
	"github.com/onnwee/tank-queue/oauth"
	"github.com/onnwee/tank-queue/server"
	"github.com/onnwee/tank-queue/store"
	"github.com/onnwee/tank-queue/telemetry"
	"github.com/onnwee/tank-queue/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	closeLog := setupLogging()
	defer closeLog()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("tank-queue", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("dialect", database.Dialect.String()), slog.String("component", "db_migrate"))
	if err := db.RunMigrations(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	msgs, err := config.LoadMessagesFile(cfg.MessagesFile)
	if err != nil {
		slog.Error("messages file load failed", slog.Any("err", err))
		os.Exit(1)
	}

	kv := database.KV()
	st := store.New(kv, cfg.StateKey)
	host := &twitchapi.Host{}
	engine := bot.NewEngine(st, kv, host, msgs)

	chatToken := func(ctx context.Context) (string, error) {
		if cfg.TwitchOAuthToken != "" {
			return cfg.TwitchOAuthToken, nil
		}
		tok, err := database.GetOAuthToken(ctx, server.TwitchProvider)
		if err != nil {
			return "", err
		}
		if tok.AccessToken == "" {
			return "", errors.New("no twitch token: set TWITCH_OAUTH_TOKEN or authorize via /auth/twitch/start")
		}
		return tok.AccessToken, nil
	}

	if cfg.TwitchClientID != "" {
		host.Helix = &twitchapi.HelixClient{
			ClientID: cfg.TwitchClientID,
			Tokens: twitchapi.TokenFunc(func(ctx context.Context) (string, error) {
				tok, err := chatToken(ctx)
				return strings.TrimPrefix(tok, "oauth:"), err
			}),
		}
		host.BroadcasterID = resolveBroadcasterID(ctx, cfg)
	}
	if host.Helix == nil || host.BroadcasterID == "" {
		slog.Info("helix disabled, redemptions stay pending (need TWITCH_CLIENT_ID and a broadcaster id)", slog.String("component", "twitchapi"))
	}

	if err := cfg.ValidateChatReady(); err == nil {
		client := chat.New(chat.Options{
			Channel:  cfg.TwitchChannel,
			Username: cfg.TwitchBotUsername,
			Token:    chatToken,
			Cooldown: cfg.ChatCooldown,
		}, engine)
		host.Chat = client
		go client.Run(ctx)
	} else {
		slog.Info("chat disabled", slog.Any("err", err), slog.String("component", "chat"))
	}

	var oauthCfg *oauth2.Config
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		oauthCfg = twitchapi.NewOAuthConfig(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, cfg.TwitchScopes)
		oauth.StartRefresher(ctx, database, server.TwitchProvider, 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (db.OAuthToken, error) {
			tok, err := twitchapi.RefreshToken(rctx, oauthCfg, refreshToken)
			if err != nil {
				return db.OAuthToken{}, err
			}
			return db.OAuthToken{
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				Expiry:       twitchapi.ComputeExpiry(tok),
				Scope:        twitchapi.Scope(tok),
			}, nil
		})
	}

	// sweep expired tokens and write the overlay once before any event arrives
	if err := engine.Execute(ctx, bot.Args{"action": "render_queue"}); err != nil {
		slog.Error("initial render failed", slog.Any("err", err))
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		deps := server.Deps{Config: cfg, DB: database, KV: kv, Store: st, Engine: engine, OAuth: oauthCfg}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging installs the default slog logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// The returned func closes the log file.
func setupLogging() func() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if path := os.Getenv("LOG_FILE"); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, lj)
		closeFn = func() { _ = lj.Close() }
	}

	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		format = "text"
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format), slog.String("file", os.Getenv("LOG_FILE")))
	return closeFn
}

// resolveBroadcasterID returns TWITCH_BROADCASTER_ID, or looks the channel up with an
// app access token when it is unset.
func resolveBroadcasterID(ctx context.Context, cfg *config.Config) string {
	if cfg.TwitchBroadcasterID != "" {
		return cfg.TwitchBroadcasterID
	}
	if cfg.TwitchChannel == "" || cfg.TwitchClientSecret == "" {
		return ""
	}
	lookup := &twitchapi.HelixClient{
		ClientID: cfg.TwitchClientID,
		Tokens:   &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
	}
	lctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	id, err := lookup.GetUserID(lctx, cfg.TwitchChannel)
	if err != nil {
		slog.Warn("broadcaster id lookup failed", slog.String("channel", cfg.TwitchChannel), slog.Any("err", err), slog.String("component", "twitchapi"))
		return ""
	}
	slog.Info("broadcaster id resolved", slog.String("channel", cfg.TwitchChannel), slog.String("id", id), slog.String("component", "twitchapi"))
	return id
}
