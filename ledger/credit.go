package ledger

import (
	"math"
	"strings"
)

// EventSource tells where a support event came from.
type EventSource string

const (
	SourcePlatform   EventSource = "twitch"
	SourceTipService EventSource = "tips"
)

// EventType is the kind of support event.
type EventType string

const (
	EventSubscription EventType = "subscription"
	EventResub        EventType = "resub"
	EventGiftSub      EventType = "giftsub"
	EventGiftBomb     EventType = "giftbomb"
	EventCheer        EventType = "cheer"
	EventTip          EventType = "tip"
)

// SupportEvent is the input of the credit calculation.
type SupportEvent struct {
	Source    EventSource
	Type      EventType
	Tier      int
	Bits      int
	TipAmount float64
	GiftCount int
}

// Rates converts support events into tokens.
type Rates struct {
	TierTokens   [3]int // tiers 1, 2, 3
	BitsPerToken int
	TipPerToken  float64
}

// DefaultRates are the built-in conversion rates.
func DefaultRates() Rates {
	return Rates{TierTokens: [3]int{1, 2, 6}, BitsPerToken: 200, TipPerToken: 3}
}

// NormalizeTier maps 1000/2000/3000 style plan ids to 1/2/3 and unset tiers to 1.
func NormalizeTier(tier int) int {
	if tier >= 1000 {
		tier /= 1000
	}
	if tier <= 0 {
		return 1
	}
	return tier
}

// Tokens returns the number of tokens ev is worth, at most MaxGrant. Fractions are
// dropped. Zero means "no credit": callers must not message or mutate state for it.
func (r Rates) Tokens(ev SupportEvent) int {
	return capGrant(r.tokens(ev))
}

func (r Rates) tokens(ev SupportEvent) int {
	switch ev.Source {
	case SourcePlatform:
		switch EventType(strings.ToLower(string(ev.Type))) {
		case EventSubscription, EventResub, EventGiftSub:
			return r.tierTokens(ev.Tier)
		case EventGiftBomb:
			count := min(max(ev.GiftCount, 1), MaxGrant)
			per := r.tierTokens(ev.Tier)
			if per > 0 && count > MaxGrant/per {
				return MaxGrant
			}
			return per * count
		case EventCheer:
			if r.BitsPerToken <= 0 || ev.Bits <= 0 {
				return 0
			}
			return ev.Bits / r.BitsPerToken
		}
	case SourceTipService:
		if EventType(strings.ToLower(string(ev.Type))) == EventTip {
			if r.TipPerToken <= 0 || ev.TipAmount <= 0 {
				return 0
			}
			// epsilon absorbs binary float error on exact multiples (0.9 / 0.3)
			q := math.Floor(ev.TipAmount/r.TipPerToken + 1e-9)
			if q >= MaxGrant {
				return MaxGrant
			}
			return int(q)
		}
	}
	return 0
}

func (r Rates) tierTokens(tier int) int {
	switch NormalizeTier(tier) {
	case 2:
		return r.TierTokens[1]
	case 3:
		return r.TierTokens[2]
	default:
		return r.TierTokens[0]
	}
}
