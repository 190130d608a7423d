package bot

import (
	"reflect"
	"testing"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/ledger"
)

func TestClassify(t *testing.T) {
	s := config.DefaultSettings()
	s.SupporterRewardID = "rw-s"

	viewer := Caller{UserID: "7", UserName: "bob"}
	modCaller := Caller{UserID: "1", UserName: "mod", Privileged: true}

	tests := []struct {
		name string
		args Args
		want Event
	}{
		{"balance command", Args{"command": "!TANK", "userId": "7", "userName": "bob"}, BalanceQuery{Caller: viewer}},
		{"balance with target", Args{"command": "!tankinfo", "userId": "7", "userName": "@bob", "rawInput": "@carl extra"}, BalanceQuery{Caller: viewer, Target: "carl"}},
		{"help", Args{"command": "!tankhelp", "userId": "7", "userName": "bob"}, HelpRequest{Caller: viewer}},
		{"mod by flag", Args{"command": "!addtokens", "userId": "1", "userName": "mod", "isModerator": "True", "rawInput": "bob 3"}, AdminAdjust{Caller: modCaller, Add: true, Raw: "bob 3"}},
		{"broadcaster by type", Args{"command": "!dequeue", "userId": "1", "userName": "mod", "userType": "Broadcaster"}, QueueControl{Caller: modCaller, Op: OpDequeue}},
		{"reward id", Args{"userId": "7", "userName": "bob", "rewardId": "rw-s", "redemptionId": "r1", "rewardName": "whatever", "rawInput": "Tiger"},
			RedeemRequest{Caller: viewer, Lane: ledger.LaneSupporter, Raw: "Tiger", RewardID: "rw-s", RedemptionID: "r1"}},
		{"reward name pattern", Args{"userId": "7", "userName": "bob", "rewardId": "x", "redemptionId": "r2", "rewardName": "Request a TANK", "rawInput": "Maus"},
			RedeemRequest{Caller: viewer, Lane: ledger.LaneNormal, Raw: "Maus", RewardID: "x", RedemptionID: "r2"}},
		{"supporter pattern wins over normal", Args{"rewardName": "Supporter tank", "rawInput": "Maus"},
			RedeemRequest{Lane: ledger.LaneSupporter, Raw: "Maus"}},
		{"command beats reward", Args{"command": "!tank", "rewardName": "Tank request", "userName": "bob", "userId": "7"}, BalanceQuery{Caller: viewer}},
		{"refund hotkey", Args{"key": "vcr", "hasShift": "true", "hasCtrl": "1"}, QueueControl{Op: OpRefundTop, Trusted: true}},
		{"hotkey without modifiers", Args{"key": "vcr"}, Unknown{Reason: "no recognised fields"}},
		{"dequeue hotkey", Args{"key": "VCP", "hasShift": "true", "hasAlt": "true", "hasCtrl": "true"}, QueueControl{Op: OpDequeue, Trusted: true}},
		{"webhook action is trusted", Args{"action": "refund_all"}, QueueControl{Op: OpRefundAll, Trusted: true}},
		{"unknown action", Args{"action": "dance"}, Unknown{Reason: "unknown action dance"}},
		{"unknown command", Args{"command": "!dance"}, Unknown{Reason: "unknown command !dance"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.args, s); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestClassifySupportTypes(t *testing.T) {
	s := config.DefaultSettings()
	tests := []struct {
		name string
		args Args
		typ  ledger.EventType
		src  ledger.EventSource
		tier int
	}{
		{"cheer", Args{"userName": "a", "bits": "300"}, ledger.EventCheer, ledger.SourcePlatform, 1},
		{"tip", Args{"tipUsername": "a", "tipAmount": "4,50"}, ledger.EventTip, ledger.SourceTipService, 1},
		{"gift bomb", Args{"userName": "a", "gifts": "5", "tier": "2000"}, ledger.EventGiftBomb, ledger.SourcePlatform, 2},
		{"gift sub", Args{"userName": "a", "subTier": "1000", "recipientUserName": "b"}, ledger.EventGiftSub, ledger.SourcePlatform, 1},
		{"resub", Args{"userName": "a", "subscriptionTier": "3", "cumulative": "12"}, ledger.EventResub, ledger.SourcePlatform, 3},
		{"first sub", Args{"userName": "a", "tier": "1000", "monthsSubscribed": "1"}, ledger.EventSubscription, ledger.SourcePlatform, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Classify(tt.args, s).(Support)
			if !ok {
				t.Fatalf("not a support event: %#v", Classify(tt.args, s))
			}
			if ev.Name != "a" || ev.Event.Type != tt.typ || ev.Event.Source != tt.src || ev.Event.Tier != tt.tier {
				t.Errorf("support = %+v", ev)
			}
		})
	}
}

func TestHotkeyModifierOrder(t *testing.T) {
	s := config.DefaultSettings()
	s.DequeueHotkey = "Ctrl+Shift+VCR"
	s.RefundTopHotkey = "control + alt + vcp"
	if got := Classify(Args{"key": "vcr", "hasShift": "true", "hasCtrl": "true"}, s); !reflect.DeepEqual(got, QueueControl{Op: OpDequeue, Trusted: true}) {
		t.Errorf("ctrl+shift combo = %#v", got)
	}
	if got := Classify(Args{"key": "vcp", "hasAlt": "1", "hasCtrl": "1"}, s); !reflect.DeepEqual(got, QueueControl{Op: OpRefundTop, Trusted: true}) {
		t.Errorf("ctrl+alt combo = %#v", got)
	}
	for in, want := range map[string]string{
		"ctrl+shift+vcr":     "shift+ctrl+vcr",
		"shift+alt+ctrl+vcp": "shift+alt+ctrl+vcp",
		"vcr":                "vcr",
	} {
		if got := normalizeCombo(in); got != want {
			t.Errorf("normalizeCombo(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArgsAccessors(t *testing.T) {
	a := Args{"n": " 12 ", "bad": "x", "f": "2,5", "b": "TRUE", "empty": "  "}
	if a.Int("n") != 12 || a.Int("bad") != 0 || a.Int("missing") != 0 {
		t.Errorf("Int")
	}
	if a.Float("f") != 2.5 {
		t.Errorf("Float = %v", a.Float("f"))
	}
	for in, want := range map[string]float64{
		"1,234.50":    1234.5,
		"1.234,50":    1234.5,
		"4,50":        4.5,
		"1,234,567":   1234567,
		"12.75":       12.75,
		"not a tip":   0,
		"1.234.567,5": 1234567.5,
	} {
		if got := (Args{"v": in}).Float("v"); got != want {
			t.Errorf("Float(%q) = %v, want %v", in, got, want)
		}
	}
	if !a.Bool("b") || a.Bool("n") {
		t.Errorf("Bool")
	}
	if a.Has("empty") || a.First("empty", "missing", "n") != "12" {
		t.Errorf("Has/First")
	}
}
