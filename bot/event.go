package bot

import (
	"strings"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/ledger"
)

// Event is the classified form of one invocation. Handlers only ever see Events.
type Event interface {
	// Action names the event for logs and metrics.
	Action() string
}

// BalanceQuery asks for the caller's (or Target's) wallet and queue position.
type BalanceQuery struct {
	Caller Caller
	Target string
}

// HelpRequest asks for the usage lines.
type HelpRequest struct{ Caller Caller }

// Support credits tokens for a subscription, cheer or tip.
type Support struct {
	UserID string
	Name   string
	Event  ledger.SupportEvent
	Keys   []string // arg keys present, logged when Name is missing
}

// AdminAdjust adds or removes tokens; Raw is "<amount>" or "<@user> <amount>".
type AdminAdjust struct {
	Caller Caller
	Add    bool
	Raw    string
}

// RedeemRequest is a channel point redemption for a lane.
type RedeemRequest struct {
	Caller       Caller
	Lane         ledger.Lane
	Raw          string
	RewardID     string
	RedemptionID string
}

// ManualEnqueue is a moderator placing a request without a redemption.
type ManualEnqueue struct {
	Caller Caller
	Lane   ledger.Lane
	Raw    string
}

// QueueOp is an operator action on the queues.
type QueueOp string

const (
	OpDequeue   QueueOp = "dequeue"
	OpRefundTop QueueOp = "refund_top"
	OpRefundAll QueueOp = "refund_all"
	OpRender    QueueOp = "render_queue"
	OpReset     QueueOp = "reset"
)

// QueueControl runs a QueueOp. Trusted marks triggers that never come from chat
// (hotkeys, the authenticated webhook's action field), which skip the privilege check.
type QueueControl struct {
	Caller  Caller
	Op      QueueOp
	Trusted bool
}

// Unknown is anything Classify could not place.
type Unknown struct{ Reason string }

func (BalanceQuery) Action() string { return "balance" }
func (HelpRequest) Action() string  { return "help" }
func (Support) Action() string      { return "credit_tokens" }
func (e AdminAdjust) Action() string {
	if e.Add {
		return "add_tokens"
	}
	return "remove_tokens"
}
func (e RedeemRequest) Action() string {
	if e.Lane == ledger.LaneSupporter {
		return "supporter_redeem"
	}
	return "normal_redeem"
}
func (e ManualEnqueue) Action() string {
	if e.Lane == ledger.LaneSupporter {
		return "queue_supporter"
	}
	return "queue_normal"
}
func (e QueueControl) Action() string { return string(e.Op) }
func (Unknown) Action() string        { return "unknown" }

var commands = map[string]string{
	"!tank":           "balance",
	"!tankinfo":       "balance",
	"!tankhelp":       "help",
	"!refund":         "refund_all",
	"!addtokens":      "add_tokens",
	"!removetokens":   "remove_tokens",
	"!queuenormal":    "queue_normal",
	"!queuesupporter": "queue_supporter",
	"!dequeue":        "dequeue",
	"!refundtop":      "refund_top",
	"!renderqueue":    "render_queue",
	"!resetqueue":     "reset",
}

// Classify turns args into an Event. The first matching rule wins: explicit command,
// reward match, support fields, hotkey combo, then the fallback action field.
func Classify(a Args, s config.Settings) Event {
	c := callerFrom(a)
	raw := a.Get("rawInput")

	if cmd := strings.ToLower(a.Get("command")); cmd != "" {
		if name, ok := commands[cmd]; ok {
			return byName(name, a, c, raw, false)
		}
	}

	if ev, ok := classifyReward(a, s, c, raw); ok {
		return ev
	}

	if ev, ok := classifySupport(a); ok {
		return ev
	}

	if key := a.Get("key"); key != "" {
		combo := hotkeyCombo(a, key)
		switch {
		case s.DequeueHotkey != "" && combo == normalizeCombo(s.DequeueHotkey):
			return QueueControl{Caller: c, Op: OpDequeue, Trusted: true}
		case s.RefundTopHotkey != "" && combo == normalizeCombo(s.RefundTopHotkey):
			return QueueControl{Caller: c, Op: OpRefundTop, Trusted: true}
		}
	}

	if action := strings.ToLower(a.Get("action")); action != "" {
		return byName(action, a, c, raw, true)
	}
	if cmd := a.Get("command"); cmd != "" {
		return Unknown{Reason: "unknown command " + cmd}
	}
	return Unknown{Reason: "no recognised fields"}
}

func classifyReward(a Args, s config.Settings, c Caller, raw string) (Event, bool) {
	redeem := func(l ledger.Lane) RedeemRequest {
		return RedeemRequest{Caller: c, Lane: l, Raw: raw, RewardID: a.Get("rewardId"), RedemptionID: a.Get("redemptionId")}
	}
	if id := a.Get("rewardId"); id != "" {
		if s.SupporterRewardID != "" && id == s.SupporterRewardID {
			return redeem(ledger.LaneSupporter), true
		}
		if s.NormalRewardID != "" && id == s.NormalRewardID {
			return redeem(ledger.LaneNormal), true
		}
	}
	name := strings.ToLower(a.Get("rewardName"))
	if name == "" {
		return nil, false
	}
	if p := strings.ToLower(s.SupporterRewardPattern); p != "" && strings.Contains(name, p) {
		return redeem(ledger.LaneSupporter), true
	}
	if p := strings.ToLower(s.NormalRewardPattern); p != "" && strings.Contains(name, p) {
		return redeem(ledger.LaneNormal), true
	}
	return nil, false
}

func classifySupport(a Args) (Event, bool) {
	tierKeys := []string{"tier", "subTier", "subscriptionTier", "monthsSubscribed", "gifts"}
	present := false
	for _, k := range append(tierKeys, "bits", "tipAmount") {
		if a.Has(k) {
			present = true
			break
		}
	}
	if !present {
		return nil, false
	}

	ev := ledger.SupportEvent{Source: ledger.SourcePlatform}
	if a.Has("tipAmount") {
		ev.Source = ledger.SourceTipService
	}
	ev.Tier = ledger.NormalizeTier(tierArg(a))
	ev.Bits = a.Int("bits")
	ev.TipAmount = a.Float("tipAmount")
	switch {
	case ev.Bits > 0:
		ev.Type = ledger.EventCheer
	case ev.TipAmount > 0:
		ev.Type = ledger.EventTip
	case a.Int("gifts") > 0:
		ev.Type = ledger.EventGiftBomb
		ev.GiftCount = a.Int("gifts")
	case a.Has("recipientUserName") || a.Has("recipientUserId"):
		ev.Type = ledger.EventGiftSub
	case a.Int("monthsSubscribed") > 1 || a.Int("cumulative") > 1:
		ev.Type = ledger.EventResub
	default:
		ev.Type = ledger.EventSubscription
	}

	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	return Support{
		UserID: a.Get("userId"),
		Name:   strings.TrimPrefix(a.First("userName", "tipUsername", "user", "username", "name"), "@"),
		Event:  ev,
		Keys:   keys,
	}, true
}

// tierArg reads the first non-zero tier under any of the names hosts use.
func tierArg(a Args) int {
	for _, k := range []string{"tier", "subTier", "subscriptionTier"} {
		if n := a.Int(k); n != 0 {
			return n
		}
	}
	return 0
}

// modifierOrder is the order hotkeyCombo emits modifiers in.
var modifierOrder = []string{"shift", "alt", "ctrl"}

// normalizeCombo puts the modifiers of a configured combo such as "ctrl+shift+vcr" in
// hotkeyCombo order so the two compare equal.
func normalizeCombo(combo string) string {
	held := map[string]bool{}
	var keys []string
	for _, p := range strings.Split(strings.ToLower(combo), "+") {
		p = strings.TrimSpace(p)
		switch p {
		case "":
		case "shift", "alt", "ctrl":
			held[p] = true
		case "control":
			held["ctrl"] = true
		default:
			keys = append(keys, p)
		}
	}
	parts := make([]string, 0, len(modifierOrder)+len(keys))
	for _, m := range modifierOrder {
		if held[m] {
			parts = append(parts, m)
		}
	}
	return strings.Join(append(parts, keys...), "+")
}

func hotkeyCombo(a Args, key string) string {
	parts := make([]string, 0, 4)
	if a.Bool("hasShift") {
		parts = append(parts, "shift")
	}
	if a.Bool("hasAlt") {
		parts = append(parts, "alt")
	}
	if a.Bool("hasCtrl") {
		parts = append(parts, "ctrl")
	}
	parts = append(parts, strings.ToLower(key))
	return strings.Join(parts, "+")
}

func byName(name string, a Args, c Caller, raw string, trusted bool) Event {
	switch name {
	case "balance":
		q := BalanceQuery{Caller: c}
		if f := strings.Fields(raw); len(f) > 0 && strings.HasPrefix(f[0], "@") {
			q.Target = strings.TrimPrefix(f[0], "@")
		}
		return q
	case "help":
		return HelpRequest{Caller: c}
	case "credit_tokens":
		if ev, ok := classifySupport(a); ok {
			return ev
		}
		return Unknown{Reason: "credit without support fields"}
	case "add_tokens", "remove_tokens":
		return AdminAdjust{Caller: c, Add: name == "add_tokens", Raw: raw}
	case "supporter_redeem", "normal_redeem":
		lane := ledger.LaneNormal
		if name == "supporter_redeem" {
			lane = ledger.LaneSupporter
		}
		return RedeemRequest{Caller: c, Lane: lane, Raw: raw, RewardID: a.Get("rewardId"), RedemptionID: a.Get("redemptionId")}
	case "queue_normal":
		return ManualEnqueue{Caller: c, Lane: ledger.LaneNormal, Raw: raw}
	case "queue_supporter":
		return ManualEnqueue{Caller: c, Lane: ledger.LaneSupporter, Raw: raw}
	case "dequeue", "refund_top", "refund_all", "render_queue", "reset":
		return QueueControl{Caller: c, Op: QueueOp(name), Trusted: trusted}
	}
	return Unknown{Reason: "unknown action " + name}
}
