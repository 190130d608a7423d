package chat

import (
	"context"
	"log/slog"
	"time"
)

const (
	minBackoff = 2 * time.Second
	maxBackoff = 2 * time.Minute
)

// Run starts the event worker and keeps the IRC connection up until ctx is canceled,
// reconnecting with exponential backoff. The backoff resets after a connection that
// stayed up for at least maxBackoff.
func (c *Client) Run(ctx context.Context) {
	if c.opts.Channel == "" || c.opts.Username == "" {
		slog.Info("chat: TWITCH_CHANNEL or TWITCH_BOT_USERNAME empty; adapter disabled", slog.String("component", "chat"))
		return
	}
	go c.work(ctx)

	backoff := minBackoff
	slog.Info("chat: starting", slog.String("channel", c.opts.Channel), slog.Duration("cooldown", c.opts.Cooldown), slog.String("component", "chat"))
	for ctx.Err() == nil {
		started := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) >= maxBackoff {
			backoff = minBackoff
		}
		slog.Warn("chat: connection ended; reconnecting", slog.Any("err", err), slog.Duration("backoff", backoff), slog.String("component", "chat"))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
