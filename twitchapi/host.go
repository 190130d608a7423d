package twitchapi

import (
	"context"
	"log/slog"
)

// MessageSender posts one chat line.
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
}

// Host carries out engine side effects against Twitch: chat lines through Chat and
// redemption updates through Helix. Redemption updates are skipped when Helix or
// BroadcasterID is unset.
type Host struct {
	Chat          MessageSender
	Helix         *HelixClient
	BroadcasterID string
}

func (h *Host) SendMessage(ctx context.Context, text string) error {
	if h.Chat == nil {
		slog.Info("chat disabled, reply not sent", slog.String("text", text), slog.String("component", "twitchapi"))
		return nil
	}
	return h.Chat.SendMessage(ctx, text)
}

func (h *Host) FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error {
	return h.update(ctx, rewardID, redemptionID, StatusFulfilled)
}

func (h *Host) CancelRedemption(ctx context.Context, rewardID, redemptionID string) error {
	return h.update(ctx, rewardID, redemptionID, StatusCanceled)
}

func (h *Host) update(ctx context.Context, rewardID, redemptionID, status string) error {
	if h.Helix == nil || h.BroadcasterID == "" {
		slog.Debug("helix disabled, redemption left pending", slog.String("redemption", redemptionID), slog.String("status", status), slog.String("component", "twitchapi"))
		return nil
	}
	return h.Helix.UpdateRedemptionStatus(ctx, h.BroadcasterID, rewardID, redemptionID, status)
}
