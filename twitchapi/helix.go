// Package twitchapi contains minimal helpers for the Twitch Helix API and OAuth flows:
// user id resolution, channel point redemption updates, the bot account's
// authorization code grant and the app access token.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// Redemption statuses accepted by UpdateRedemptionStatus.
const (
	StatusFulfilled = "FULFILLED"
	StatusCanceled  = "CANCELED"
)

// APIError is a non-2xx Helix response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix: status %d: %s", e.StatusCode, e.Body)
}

// HelixClient calls Helix with a bearer token from Tokens.
type HelixClient struct {
	Tokens     TokenProvider
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) url(path string) string {
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + path
}

func (hc *HelixClient) do(req *http.Request) (*http.Response, error) {
	if hc.Tokens == nil {
		return nil, fmt.Errorf("helix: no token provider")
	}
	tok, err := hc.Tokens.Get(req.Context())
	if err != nil {
		return nil, fmt.Errorf("helix token: %w", err)
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer closeBody(resp)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.url("/users"), nil)
	q := req.URL.Query()
	q.Set("login", strings.ToLower(strings.TrimPrefix(login, "#")))
	req.URL.RawQuery = q.Encode()
	resp, err := hc.do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// UpdateRedemptionStatus marks a channel point redemption FULFILLED or CANCELED.
// Canceling refunds the viewer's points. Only redemptions of rewards created by the same
// client id can be updated.
func (hc *HelixClient) UpdateRedemptionStatus(ctx context.Context, broadcasterID, rewardID, redemptionID, status string) error {
	if broadcasterID == "" || rewardID == "" || redemptionID == "" {
		return fmt.Errorf("broadcaster, reward and redemption ids are required")
	}
	if status != StatusFulfilled && status != StatusCanceled {
		return fmt.Errorf("invalid redemption status %q", status)
	}
	payload, _ := json.Marshal(map[string]string{"status": status})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPatch, hc.url("/channel_points/custom_rewards/redemptions"), bytes.NewReader(payload))
	q := req.URL.Query()
	q.Set("id", redemptionID)
	q.Set("broadcaster_id", broadcasterID)
	q.Set("reward_id", rewardID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.do(req)
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}
