package config

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// MessagePrefix namespaces message template overrides in the kv store.
const MessagePrefix = "msg."

// Messages holds every chat reply template. Placeholders are written {name}.
type Messages struct {
	TokensCredited        string `toml:"tokensCredited"`          // {user} {amount} {balance}
	TokensAdded           string `toml:"tokensAdded"`             // {user} {amount} {balance}
	TokensRemoved         string `toml:"tokensRemoved"`           // {user} {amount} {balance}
	NotEnoughTokens       string `toml:"notEnoughTokens"`         // {user} {balance} {cost}
	TankInfoBalance       string `toml:"tankInfoBalance"`         // {user} {target} {balance} {expiry} {queueInfo}
	TankInfoNoTokens      string `toml:"tankInfoNoTokensInQueue"` // {user} {target} {queueInfo}
	TankInfoEmpty         string `toml:"tankInfoEmpty"`           // {user} {target}
	SupporterAdded        string `toml:"supporterAdded"`          // {user} {tank} {cost} {balance}
	ArtyAdded             string `toml:"artyAdded"`               // {user} {tank} {cost} {balance}
	BlacklistAdded        string `toml:"blacklistAdded"`          // {user} {tank} {cost} {balance}
	TrollAdded            string `toml:"trollAdded"`              // {user} {tank} {cost} {balance}
	NormalAdded           string `toml:"normalAdded"`             // {user} {tank}
	ManualNormalAdded     string `toml:"manualNormalAdded"`       // {user} {tank}
	ManualSupporterAdded  string `toml:"manualSupporterAdded"`    // {user} {tank} {cost} {type}
	Completed             string `toml:"completed"`               // {user} {type} {tank}
	RefundedNormal        string `toml:"refundedNormal"`          // {user} {tank}
	RefundedAllNormal     string `toml:"refundedAllNormal"`       // {count}
	QueueEmpty            string `toml:"queueEmpty"`
	NoNormalRequests      string `toml:"noNormalRequests"`
	QueueReset            string `toml:"queueReset"`
	Error                 string `toml:"error"`                 // {user} {error}
	ModOnly               string `toml:"modOnly"`               // {user}
	UserNotFound          string `toml:"userNotFound"`          // {user} {target}
	TargetNotEnoughTokens string `toml:"targetNotEnoughTokens"` // {target} {balance} {cost}
	TankNameMissing       string `toml:"tankNameMissing"`
	TankNameTooLong       string `toml:"tankNameTooLong"`     // {maxLength}
	UsageAddTokens        string `toml:"usageAddTokens"`      // {user}
	UsageRemoveTokens     string `toml:"usageRemoveTokens"`   // {user}
	UsageQueueNormal      string `toml:"usageQueueNormal"`    // {user}
	UsageQueueSupporter   string `toml:"usageQueueSupporter"` // {user}
	HelpLine1             string `toml:"helpLine1"`           // {tier1} {tier2} {tier3} {bitsPerToken} {tipPerToken}
	HelpLine2             string `toml:"helpLine2"`           // {ttlHours} {costArty} {costBlacklist} {costTroll}
	QueuePosActive        string `toml:"queuePosActive"`      // {pos}
	QueuePosSoon          string `toml:"queuePosSoon"`        // {pos}
	QueuePosWait          string `toml:"queuePosWait"`        // {pos} {eta}
}

// DefaultMessages returns the built-in English templates.
func DefaultMessages() Messages {
	return Messages{
		TokensCredited:        "@{user}, +{amount} supporter tokens. Balance: {balance}. Request a tank!",
		TokensAdded:           "@{user}, +{amount} tokens. Balance: {balance}.",
		TokensRemoved:         "@{user}, -{amount} tokens. Balance: {balance}.",
		NotEnoughTokens:       "@{user}, not enough tokens (have: {balance}, need: {cost}).",
		TankInfoBalance:       "@{user}, {target}Balance: {balance} (expires: {expiry}).{queueInfo}",
		TankInfoNoTokens:      "@{user}, {target}No tokens, but a request is in the queue.{queueInfo}",
		TankInfoEmpty:         "@{user}, {target}No tokens and no request in the queue.",
		SupporterAdded:        "Queued: [S] {tank} x{cost} - {user}. Remaining: {balance}.",
		ArtyAdded:             "Arty request queued: {tank} ({cost} tokens) - {user}. Remaining: {balance}.",
		BlacklistAdded:        "Blacklist request queued: {tank} ({cost} tokens) - {user}. Remaining: {balance}.",
		TrollAdded:            "Troll request queued: {tank} ({cost} tokens) - {user}. Remaining: {balance}.",
		NormalAdded:           "Queued: [N] {tank} - {user}",
		ManualNormalAdded:     "[MANUAL] Queued: [N] {tank} - {user}",
		ManualSupporterAdded:  "[MANUAL] Queued: [S] {tank} x{cost} - {user} {type}",
		Completed:             "Done: {type} {tank} - {user}",
		RefundedNormal:        "Refunded: [N] {tank} - {user} (points returned)",
		RefundedAllNormal:     "{count} normal requests refunded, points returned.",
		QueueEmpty:            "The queue is empty.",
		NoNormalRequests:      "No normal requests in the queue.",
		QueueReset:            "Queue and tokens reset.",
		Error:                 "@{user}, {error}",
		ModOnly:               "@{user}, only mods and the broadcaster can use this command.",
		UserNotFound:          "@{user}, {target} not found.",
		TargetNotEnoughTokens: "@{target} does not have enough tokens (have: {balance}, need: {cost}).",
		TankNameMissing:       "Give a tank name! E.g.: 'IS-7'",
		TankNameTooLong:       "Tank name too long (max {maxLength} characters)!",
		UsageAddTokens:        "@{user}, usage: !addtokens <amount> or !addtokens <user> <amount>",
		UsageRemoveTokens:     "@{user}, usage: !removetokens <amount> or !removetokens <user> <amount>",
		UsageQueueNormal:      "@{user}, usage: !queuenormal <tank name>",
		UsageQueueSupporter:   "@{user}, usage: !queuesupporter [@user] <tank name> [multiplier/code]",
		HelpLine1:             "How to request a tank: 1. Normal: with channel points. 2. Supporter: with tokens (priority). Tokens: Sub (T1={tier1}, T2={tier2}, T3={tier3}), Cheer ({bitsPerToken} bits=1), Tip ({tipPerToken}=1).",
		HelpLine2:             "Tokens are valid for {ttlHours} hours. Special: xA (Arty, {costArty}), xB (Blacklist, {costBlacklist}), xT (Troll, {costTroll}). Use a multiplier for more battles (e.g. Tiger x3). Balance: !tankinfo",
		QueuePosActive:        " Position: {pos}. In battle now.",
		QueuePosSoon:          " Position: {pos}. Up next.",
		QueuePosWait:          " Position: {pos}. (about {eta})",
	}
}

// fields maps the kv/TOML key of each template to its storage.
func (m *Messages) fields() map[string]*string {
	return map[string]*string{
		"tokensCredited":          &m.TokensCredited,
		"tokensAdded":             &m.TokensAdded,
		"tokensRemoved":           &m.TokensRemoved,
		"notEnoughTokens":         &m.NotEnoughTokens,
		"tankInfoBalance":         &m.TankInfoBalance,
		"tankInfoNoTokensInQueue": &m.TankInfoNoTokens,
		"tankInfoEmpty":           &m.TankInfoEmpty,
		"supporterAdded":          &m.SupporterAdded,
		"artyAdded":               &m.ArtyAdded,
		"blacklistAdded":          &m.BlacklistAdded,
		"trollAdded":              &m.TrollAdded,
		"normalAdded":             &m.NormalAdded,
		"manualNormalAdded":       &m.ManualNormalAdded,
		"manualSupporterAdded":    &m.ManualSupporterAdded,
		"completed":               &m.Completed,
		"refundedNormal":          &m.RefundedNormal,
		"refundedAllNormal":       &m.RefundedAllNormal,
		"queueEmpty":              &m.QueueEmpty,
		"noNormalRequests":        &m.NoNormalRequests,
		"queueReset":              &m.QueueReset,
		"error":                   &m.Error,
		"modOnly":                 &m.ModOnly,
		"userNotFound":            &m.UserNotFound,
		"targetNotEnoughTokens":   &m.TargetNotEnoughTokens,
		"tankNameMissing":         &m.TankNameMissing,
		"tankNameTooLong":         &m.TankNameTooLong,
		"usageAddTokens":          &m.UsageAddTokens,
		"usageRemoveTokens":       &m.UsageRemoveTokens,
		"usageQueueNormal":        &m.UsageQueueNormal,
		"usageQueueSupporter":     &m.UsageQueueSupporter,
		"helpLine1":               &m.HelpLine1,
		"helpLine2":               &m.HelpLine2,
		"queuePosActive":          &m.QueuePosActive,
		"queuePosSoon":            &m.QueuePosSoon,
		"queuePosWait":            &m.QueuePosWait,
	}
}

// MessageKeys lists every msg.* key, sorted.
func MessageKeys() []string {
	var m Messages
	keys := make([]string, 0, 40)
	for k := range m.fields() {
		keys = append(keys, MessagePrefix+k)
	}
	sort.Strings(keys)
	return keys
}

// LoadMessagesFile decodes a TOML file of templates over the defaults. Keys absent from
// the file keep their default; unknown keys are an error so typos surface at startup.
func LoadMessagesFile(path string) (Messages, error) {
	m := DefaultMessages()
	if path == "" {
		return m, nil
	}
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return DefaultMessages(), fmt.Errorf("decode messages file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return DefaultMessages(), fmt.Errorf("unknown message keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return m, nil
}

// LoadMessages returns base overridden by any non-empty msg.* value in g.
func LoadMessages(ctx context.Context, g Getter, base Messages) Messages {
	m := base
	for key, field := range m.fields() {
		v, err := g.Get(ctx, MessagePrefix+key)
		if err != nil {
			slog.Warn("message read failed, using default", slog.String("key", MessagePrefix+key), slog.Any("err", err), slog.String("component", "config"))
			continue
		}
		if v != "" {
			*field = v
		}
	}
	return m
}

// Format replaces each {key} in tpl with its value. pairs alternates key, value; values
// are rendered with fmt's %v. A trailing key without a value is ignored.
func Format(tpl string, pairs ...any) string {
	if tpl == "" || len(pairs) < 2 {
		return tpl
	}
	args := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, "{"+fmt.Sprint(pairs[i])+"}", fmt.Sprint(pairs[i+1]))
	}
	return strings.NewReplacer(args...).Replace(tpl)
}
