package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		tpl   string
		pairs []any
		want  string
	}{
		{"@{user}, +{amount}. Balance: {balance}", []any{"user", "alice", "amount", 3, "balance", 5}, "@alice, +3. Balance: 5"},
		{"{a}{a}", []any{"a", "x"}, "xx"},
		{"keep {unknown}", []any{"user", "bob"}, "keep {unknown}"},
		{"no pairs", nil, "no pairs"},
		{"{user}", []any{"user"}, "{user}"},
		{"", []any{"user", "bob"}, ""},
	}
	for _, tt := range tests {
		if got := Format(tt.tpl, tt.pairs...); got != tt.want {
			t.Errorf("Format(%q, %v) = %q, want %q", tt.tpl, tt.pairs, got, tt.want)
		}
	}
}

func TestEveryMessageHasKeyAndDefault(t *testing.T) {
	m := DefaultMessages()
	fields := m.fields()
	if len(MessageKeys()) != len(fields) {
		t.Fatalf("MessageKeys has %d entries, fields %d", len(MessageKeys()), len(fields))
	}
	for k, p := range fields {
		if *p == "" {
			t.Errorf("message %q has no default", k)
		}
	}
}

func TestLoadMessagesOverrides(t *testing.T) {
	base := DefaultMessages()
	m := LoadMessages(context.Background(), mapGetter{"msg.queueEmpty": "Nothing to do.", "msg.unknown": "x"}, base)
	if m.QueueEmpty != "Nothing to do." {
		t.Errorf("override not applied: %q", m.QueueEmpty)
	}
	if m.NormalAdded != base.NormalAdded {
		t.Errorf("untouched message changed: %q", m.NormalAdded)
	}
	if got := LoadMessages(context.Background(), errGetter{}, base); got != base {
		t.Error("read failures must keep base messages")
	}
}

func TestLoadMessagesFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "messages.toml")
	if err := os.WriteFile(good, []byte("queueEmpty = \"A sor üres.\"\nmodOnly = \"@{user}, mods only\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := LoadMessagesFile(good)
	if err != nil {
		t.Fatalf("LoadMessagesFile: %v", err)
	}
	if m.QueueEmpty != "A sor üres." || m.ModOnly != "@{user}, mods only" {
		t.Errorf("file values not applied: %+v", m)
	}
	if m.Completed != DefaultMessages().Completed {
		t.Errorf("missing key lost default: %q", m.Completed)
	}

	bad := filepath.Join(dir, "typo.toml")
	_ = os.WriteFile(bad, []byte("queueEmtpy = \"x\"\n"), 0o600)
	if _, err := LoadMessagesFile(bad); err == nil || !strings.Contains(err.Error(), "queueEmtpy") {
		t.Errorf("expected unknown key error, got %v", err)
	}
	if _, err := LoadMessagesFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	if m, err := LoadMessagesFile(""); err != nil || m != DefaultMessages() {
		t.Errorf("empty path = %v", err)
	}
}
