package config

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/tank-queue/ledger"
)

// Getter reads one string value; "" means unset.
type Getter interface {
	Get(ctx context.Context, key string) (string, error)
}

// SettingPrefix namespaces runtime settings in the kv store.
const SettingPrefix = "cfg."

// Settings are the runtime knobs read from cfg.* keys.
type Settings struct {
	TTL           time.Duration
	BitsPerToken  int
	TipPerToken   float64
	TierTokens    [3]int
	CostArty      int
	CostBlacklist int
	CostTroll     int
	MaxNameLength int

	QueueHTMLPath  string
	NormalIconPath string
	QueueLines     int
	BattleMinutes  int

	SupporterRewardPattern string
	NormalRewardPattern    string
	SupporterRewardID      string
	NormalRewardID         string

	DequeueHotkey   string
	RefundTopHotkey string
}

// DefaultSettings returns the built-in values used for any unset or malformed key.
func DefaultSettings() Settings {
	costs := ledger.DefaultCosts()
	rates := ledger.DefaultRates()
	return Settings{
		TTL:                    ledger.DefaultTTL,
		BitsPerToken:           rates.BitsPerToken,
		TipPerToken:            rates.TipPerToken,
		TierTokens:             rates.TierTokens,
		CostArty:               costs[ledger.CategoryArty],
		CostBlacklist:          costs[ledger.CategoryBlacklist],
		CostTroll:              costs[ledger.CategoryTroll],
		MaxNameLength:          ledger.DefaultMaxNameLength,
		QueueHTMLPath:          "tankqueue.html",
		NormalIconPath:         "normal.png",
		QueueLines:             5,
		BattleMinutes:          7,
		SupporterRewardPattern: "supporter",
		NormalRewardPattern:    "tank",
		DequeueHotkey:          "shift+alt+ctrl+vcp", // modifiers in any order
		RefundTopHotkey:        "shift+ctrl+vcr",
	}
}

type setting struct {
	key   string
	apply func(s *Settings, raw string) bool
}

func intSetting(key string, field func(*Settings) *int, allowZero bool) setting {
	return setting{key, func(s *Settings, raw string) bool {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || (n == 0 && !allowZero) {
			return false
		}
		*field(s) = n
		return true
	}}
}

func stringSetting(key string, field func(*Settings) *string) setting {
	return setting{key, func(s *Settings, raw string) bool {
		*field(s) = raw
		return true
	}}
}

var settings = []setting{
	{"cfg.ttlHours", func(s *Settings, raw string) bool {
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || h <= 0 {
			return false
		}
		s.TTL = time.Duration(h * float64(time.Hour))
		return true
	}},
	intSetting("cfg.bitsPerToken", func(s *Settings) *int { return &s.BitsPerToken }, true),
	{"cfg.tipPerToken", func(s *Settings, raw string) bool {
		f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil || f < 0 {
			return false
		}
		s.TipPerToken = f
		return true
	}},
	intSetting("cfg.tier1Tokens", func(s *Settings) *int { return &s.TierTokens[0] }, true),
	intSetting("cfg.tier2Tokens", func(s *Settings) *int { return &s.TierTokens[1] }, true),
	intSetting("cfg.tier3Tokens", func(s *Settings) *int { return &s.TierTokens[2] }, true),
	intSetting("cfg.costArty", func(s *Settings) *int { return &s.CostArty }, false),
	intSetting("cfg.costBlacklist", func(s *Settings) *int { return &s.CostBlacklist }, false),
	intSetting("cfg.costTroll", func(s *Settings) *int { return &s.CostTroll }, false),
	intSetting("cfg.maxTankNameLength", func(s *Settings) *int { return &s.MaxNameLength }, false),
	stringSetting("cfg.queueHtmlPath", func(s *Settings) *string { return &s.QueueHTMLPath }),
	stringSetting("cfg.normalIconPath", func(s *Settings) *string { return &s.NormalIconPath }),
	intSetting("cfg.queueLines", func(s *Settings) *int { return &s.QueueLines }, false),
	intSetting("cfg.battleDurationMinutes", func(s *Settings) *int { return &s.BattleMinutes }, false),
	stringSetting("cfg.supporterRewardPattern", func(s *Settings) *string { return &s.SupporterRewardPattern }),
	stringSetting("cfg.normalRewardPattern", func(s *Settings) *string { return &s.NormalRewardPattern }),
	stringSetting("cfg.supporterRewardId", func(s *Settings) *string { return &s.SupporterRewardID }),
	stringSetting("cfg.normalRewardId", func(s *Settings) *string { return &s.NormalRewardID }),
	stringSetting("cfg.dequeueHotkey", func(s *Settings) *string { return &s.DequeueHotkey }),
	stringSetting("cfg.refundTopHotkey", func(s *Settings) *string { return &s.RefundTopHotkey }),
}

// SettingKeys lists every recognised cfg.* key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settings))
	for _, st := range settings {
		keys = append(keys, st.key)
	}
	sort.Strings(keys)
	return keys
}

// LoadSettings reads every cfg.* key from g. Read failures and malformed values keep the
// default for that field and never fail the call.
func LoadSettings(ctx context.Context, g Getter) Settings {
	s := DefaultSettings()
	for _, st := range settings {
		raw, err := g.Get(ctx, st.key)
		if err != nil {
			slog.Warn("setting read failed, using default", slog.String("key", st.key), slog.Any("err", err), slog.String("component", "config"))
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !st.apply(&s, raw) {
			slog.Warn("malformed setting, using default", slog.String("key", st.key), slog.String("value", raw), slog.String("component", "config"))
		}
	}
	return s
}

// Rates returns the credit rates described by s.
func (s Settings) Rates() ledger.Rates {
	return ledger.Rates{TierTokens: s.TierTokens, BitsPerToken: s.BitsPerToken, TipPerToken: s.TipPerToken}
}

// Parser returns the input parser described by s.
func (s Settings) Parser() ledger.Parser {
	return ledger.Parser{
		MaxNameLength: s.MaxNameLength,
		Costs: map[ledger.Category]int{
			ledger.CategoryArty:      s.CostArty,
			ledger.CategoryBlacklist: s.CostBlacklist,
			ledger.CategoryTroll:     s.CostTroll,
		},
	}
}

// TTLHours renders the TTL for help text.
func (s Settings) TTLHours() string {
	return strconv.FormatFloat(s.TTL.Hours(), 'f', -1, 64)
}
