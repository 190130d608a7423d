package chat

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/tank-queue/bot"
)

func TestPrivateMessageArgs(t *testing.T) {
	viewer := twitch.User{ID: "7", Name: "bob", DisplayName: "Bob"}
	mod := twitch.User{ID: "1", Name: "mod", Badges: map[string]int{"moderator": 1}}
	owner := twitch.User{ID: "2", Name: "owner", DisplayName: "Owner", Badges: map[string]int{"broadcaster": 1}}

	tests := []struct {
		name string
		msg  twitch.PrivateMessage
		want bot.Args
		ok   bool
	}{
		{"command", twitch.PrivateMessage{User: viewer, Message: "!TankInfo  @carl "},
			bot.Args{"userId": "7", "userName": "Bob", "command": "!tankinfo", "rawInput": "@carl"}, true},
		{"mod command", twitch.PrivateMessage{User: mod, Message: "!dequeue"},
			bot.Args{"userId": "1", "userName": "mod", "isModerator": "True", "command": "!dequeue", "rawInput": ""}, true},
		{"broadcaster", twitch.PrivateMessage{User: owner, Message: "!resetqueue"},
			bot.Args{"userId": "2", "userName": "Owner", "isBroadcaster": "True", "userType": "broadcaster", "command": "!resetqueue", "rawInput": ""}, true},
		{"reward", twitch.PrivateMessage{User: viewer, Message: " Tiger x3 ", Tags: map[string]string{"custom-reward-id": "rw-s"}},
			bot.Args{"userId": "7", "userName": "Bob", "rewardId": "rw-s", "rawInput": "Tiger x3"}, true},
		{"cheer", twitch.PrivateMessage{User: viewer, Message: "Cheer500 gg", Bits: 500},
			bot.Args{"userId": "7", "userName": "Bob", "bits": "500"}, true},
		{"chatter", twitch.PrivateMessage{User: viewer, Message: "hello"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PrivateMessageArgs(tt.msg)
			if ok != tt.ok || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PrivateMessageArgs() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestUserNoticeArgs(t *testing.T) {
	u := twitch.User{ID: "7", Name: "bob"}
	tests := []struct {
		name  string
		msgID string
		p     map[string]string
		want  map[string]string
		ok    bool
	}{
		{"sub", "sub", map[string]string{"msg-param-sub-plan": "1000"}, map[string]string{"tier": "1", "monthsSubscribed": "1"}, true},
		{"prime", "sub", map[string]string{"msg-param-sub-plan": "Prime"}, map[string]string{"tier": "1"}, true},
		{"resub", "resub", map[string]string{"msg-param-sub-plan": "3000", "msg-param-cumulative-months": "14"}, map[string]string{"tier": "3", "cumulative": "14"}, true},
		{"single gift", "subgift", map[string]string{"msg-param-sub-plan": "2000", "msg-param-recipient-user-name": "carl", "msg-param-recipient-id": "8"},
			map[string]string{"tier": "2", "recipientUserName": "carl", "recipientUserId": "8"}, true},
		{"gift of a bomb", "subgift", map[string]string{"msg-param-community-gift-id": "123", "msg-param-recipient-user-name": "carl"}, nil, false},
		{"bomb", "submysterygift", map[string]string{"msg-param-sub-plan": "1000", "msg-param-mass-gift-count": "5"}, map[string]string{"gifts": "5"}, true},
		{"raid", "raid", map[string]string{}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UserNoticeArgs(twitch.UserNoticeMessage{User: u, MsgID: tt.msgID, MsgParams: tt.p})
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
			if ok && (got["userId"] != "7" || got["userName"] != "bob") {
				t.Errorf("identity = %v", got)
			}
		})
	}
}

func TestCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCooldowns(3 * time.Second)
	c.now = func() time.Time { return now }

	if !c.Allow("bob") {
		t.Fatal("first command blocked")
	}
	if c.Allow("bob") {
		t.Error("second command inside cooldown allowed")
	}
	if !c.Allow("carl") {
		t.Error("cooldown leaked across users")
	}
	now = now.Add(3 * time.Second)
	if !c.Allow("bob") {
		t.Error("command after cooldown blocked")
	}

	var off *cooldowns
	if !off.Allow("bob") || !newCooldowns(0).Allow("bob") {
		t.Error("disabled cooldown blocked a command")
	}
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []bot.Args
	done chan struct{}
}

func (h *recordingHandler) Execute(_ context.Context, a bot.Args) error {
	h.mu.Lock()
	h.seen = append(h.seen, a)
	n := len(h.seen)
	h.mu.Unlock()
	if n == 2 {
		close(h.done)
	}
	return nil
}

func TestAcceptAppliesCooldownAndKeepsOrder(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{})}
	c := New(Options{Cooldown: time.Hour}, h)

	viewer := bot.Args{"userId": "7", "userName": "bob", "command": "!tank"}
	if !c.accept(viewer) {
		t.Fatal("first command rejected")
	}
	if c.accept(viewer) {
		t.Error("repeated viewer command accepted")
	}
	if !c.accept(bot.Args{"userId": "1", "userName": "mod", "isModerator": "True", "command": "!dequeue"}) {
		t.Error("moderator command rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.work(ctx)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not execute queued events")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen[0].Get("command") != "!tank" || h.seen[1].Get("command") != "!dequeue" {
		t.Errorf("order = %v", h.seen)
	}
}

func TestAcceptDropsWhenFull(t *testing.T) {
	c := New(Options{QueueSize: 1}, &recordingHandler{done: make(chan struct{})})
	if !c.accept(bot.Args{"bits": "100", "userName": "a"}) {
		t.Fatal("first event rejected")
	}
	if c.accept(bot.Args{"bits": "100", "userName": "b"}) {
		t.Error("event accepted into a full queue")
	}
}

func TestSendMessageBeforeConnect(t *testing.T) {
	c := New(Options{Channel: "chan"}, nil)
	if err := c.SendMessage(context.Background(), "hi"); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestTokenPrefix(t *testing.T) {
	c := New(Options{Token: func(context.Context) (string, error) { return "abc", nil }}, nil)
	tok, err := c.token(context.Background())
	if err != nil || tok != "oauth:abc" {
		t.Errorf("token = %q, %v", tok, err)
	}
	c = New(Options{Token: func(context.Context) (string, error) { return "", nil }}, nil)
	if _, err := c.token(context.Background()); err == nil {
		t.Error("empty token accepted")
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(minBackoff); got != 2*minBackoff {
		t.Errorf("nextBackoff = %v", got)
	}
	if got := nextBackoff(maxBackoff); got != maxBackoff {
		t.Errorf("backoff exceeds cap: %v", got)
	}
}
