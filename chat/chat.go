package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/tank-queue/bot"
	"github.com/onnwee/tank-queue/telemetry"
)

// ErrNotConnected is returned by SendMessage before the first successful connect.
var ErrNotConnected = errors.New("chat: not connected")

// Handler executes one translated event.
type Handler interface {
	Execute(ctx context.Context, a bot.Args) error
}

// Options configure the IRC adapter.
type Options struct {
	Channel  string
	Username string
	// Token returns the OAuth token; the "oauth:" prefix is added when missing.
	Token func(ctx context.Context) (string, error)
	// Cooldown is the minimum interval between two commands of one viewer. Moderators
	// and the broadcaster are exempt.
	Cooldown  time.Duration
	QueueSize int
}

// Client owns the IRC connection and the event worker.
type Client struct {
	opts     Options
	handler  Handler
	cooldown *cooldowns
	events   chan bot.Args

	mu  sync.Mutex
	irc *twitch.Client
}

// New builds a client; call Run to connect.
func New(opts Options, h Handler) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Client{
		opts:     opts,
		handler:  h,
		cooldown: newCooldowns(opts.Cooldown),
		events:   make(chan bot.Args, opts.QueueSize),
	}
}

// SendMessage says text in the configured channel.
func (c *Client) SendMessage(_ context.Context, text string) error {
	c.mu.Lock()
	irc := c.irc
	c.mu.Unlock()
	if irc == nil {
		return ErrNotConnected
	}
	irc.Say(c.opts.Channel, text)
	return nil
}

// accept queues a translated event. Viewer commands inside their cooldown and events
// arriving while the queue is full are dropped.
func (c *Client) accept(a bot.Args) bool {
	privileged := a.Bool("isModerator") || a.Bool("isBroadcaster")
	if a.Has("command") && !privileged && !c.cooldown.Allow(a.First("userId", "userName")) {
		slog.Debug("chat command on cooldown", slog.String("user", a.Get("userName")), slog.String("command", a.Get("command")), slog.String("component", "chat"))
		return false
	}
	select {
	case c.events <- a:
		return true
	default:
		slog.Warn("chat event queue full, dropping event", slog.String("user", a.Get("userName")), slog.String("component", "chat"))
		telemetry.CountSideEffectFailure("inbound_dropped")
		return false
	}
}

// work executes queued events in order until ctx is done.
func (c *Client) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.events:
			ectx := telemetry.WithCorrelation(ctx, uuid.NewString())
			if err := c.handler.Execute(ectx, a); err != nil {
				telemetry.LoggerWithCorr(ectx).Error("chat event failed", slog.Any("err", err), slog.String("component", "chat"))
			}
		}
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.opts.Token == nil {
		return "", errors.New("chat: no token source")
	}
	tok, err := c.opts.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", errors.New("chat: empty oauth token")
	}
	if !strings.HasPrefix(tok, "oauth:") {
		tok = "oauth:" + tok
	}
	return tok, nil
}

// connect dials once and blocks until the connection ends or ctx is canceled.
func (c *Client) connect(ctx context.Context) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	irc := twitch.NewClient(c.opts.Username, tok)
	irc.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if a, ok := PrivateMessageArgs(msg); ok {
			c.accept(a)
		}
	})
	irc.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		if a, ok := UserNoticeArgs(msg); ok {
			c.accept(a)
		}
	})
	irc.OnConnect(func() {
		slog.Info("chat connected", slog.String("channel", c.opts.Channel), slog.String("component", "chat"))
	})
	irc.Join(c.opts.Channel)

	c.mu.Lock()
	c.irc = irc
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = irc.Disconnect()
		case <-done:
		}
	}()

	err = irc.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}
