package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/tank-queue/db"
	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/telemetry"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleState() *ledger.State {
	st := ledger.NewState()
	st.Users["12345"] = &ledger.User{UserName: "Alice", Buckets: []ledger.Bucket{
		{Amount: 2, ExpiresAt: t0.Add(time.Hour), Source: ledger.SourceCredit},
		{Amount: 3, ExpiresAt: t0.Add(2 * time.Hour), Source: ledger.SourceManual},
	}}
	st.Users["se_bob"] = &ledger.User{UserName: "bob", Buckets: []ledger.Bucket{{Amount: 1, ExpiresAt: t0, Source: ledger.SourceCredit}}}
	st.SupporterQueue = append(st.SupporterQueue, ledger.QueueItem{
		ID: "a", User: "Alice", Tank: "Obj 140", Mult: 3, AdmittedAt: t0, Raw: "Obj 140 x3",
		RedemptionID: "r1", RewardID: "w1", SpecialType: ledger.CategoryNormal,
	})
	st.NormalQueue = append(st.NormalQueue, ledger.QueueItem{ID: "b", User: "bob", Tank: "IS-7", Mult: 1, AdmittedAt: t0, TipAmount: "5.00"})
	return st
}

func TestLoadMissingIsFresh(t *testing.T) {
	s := New(NewMemoryKV(), "")
	st, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Users) != 0 || st.SupporterQueue == nil || st.NormalQueue == nil {
		t.Errorf("fresh state = %+v", st)
	}
	if s.Key() != DefaultKey {
		t.Errorf("key = %q", s.Key())
	}
}

func TestSaveLoadFixedPoint(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := New(kv, "test.state")
	if err := s.Save(ctx, sampleState()); err != nil {
		t.Fatal(err)
	}
	first, _ := kv.Get(ctx, "test.state")

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatal(err)
	}
	second, _ := kv.Get(ctx, "test.state")
	if first != second {
		t.Errorf("Save(Load()) not a fixed point:\n%s\n%s", first, second)
	}
	if st.Users["12345"].Buckets[1].Source != ledger.SourceManual || st.SupporterQueue[0].RedemptionID != "r1" {
		t.Errorf("fields lost: %+v", st)
	}
}

func TestLoadCorruptBlob(t *testing.T) {
	telemetry.Init()
	ctx := context.Background()
	kv := NewMemoryKV()
	_ = kv.Set(ctx, DefaultKey, `{"users": [not json`)
	before := testutil.ToFloat64(telemetry.StateCorrupt)

	st, err := New(kv, "").Load(ctx)
	if err != nil {
		t.Fatalf("corrupt blob must not fail Load: %v", err)
	}
	if len(st.Users) != 0 {
		t.Errorf("corrupt blob state = %+v", st)
	}
	if got := testutil.ToFloat64(telemetry.StateCorrupt) - before; got != 1 {
		t.Errorf("corrupt counter delta = %v", got)
	}
	if saved, _ := kv.Get(ctx, DefaultKey+".corrupt"); saved != `{"users": [not json` {
		t.Errorf("corrupt copy = %q", saved)
	}
}

type failingKV struct{ MemoryKV }

func (f *failingKV) Get(context.Context, string) (string, error) { return "", errors.New("down") }

func TestLoadReadError(t *testing.T) {
	if _, err := New(&failingKV{}, "").Load(context.Background()); err == nil {
		t.Error("expected read error")
	}
}

func TestUpdateSkipsSave(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := New(kv, "")

	if _, err := s.Update(ctx, func(st *ledger.State) error {
		st.Users["x"] = &ledger.User{UserName: "x"}
		return ErrNoChange
	}); err != nil {
		t.Fatalf("ErrNoChange must not surface: %v", err)
	}
	boom := errors.New("boom")
	if _, err := s.Update(ctx, func(st *ledger.State) error {
		st.Users["y"] = &ledger.User{UserName: "y"}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if v, _ := kv.Get(ctx, DefaultKey); v != "" {
		t.Errorf("state saved despite skip: %s", v)
	}
}

func TestUpdateSerializesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV(), "")
	l := &ledger.Ledger{TTL: time.Hour, Now: func() time.Time { return t0 }}

	if _, err := s.Update(ctx, func(st *ledger.State) error {
		l.Credit(st.UserFor("1", "alice"), 50, ledger.SourceTest)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, func(st *ledger.State) error {
				if !l.Consume(st.Users["1"], 1) {
					return ErrNoChange
				}
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	st, _ := s.View(ctx)
	if succeeded != 50 {
		t.Errorf("successful consumes = %d, want 50", succeeded)
	}
	if got := l.ActiveBalance(st.Users["1"]); got != 0 {
		t.Errorf("final balance = %d, want 0", got)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV(), "")
	_ = s.Save(ctx, sampleState())
	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	st, _ := s.Load(ctx)
	if len(st.Users) != 0 || len(st.SupporterQueue) != 0 || len(st.NormalQueue) != 0 {
		t.Errorf("state after reset = %+v", st)
	}
}

func TestStateStoreOverSQLiteKV(t *testing.T) {
	ctx := context.Background()
	d, err := db.Connect("sqlite::memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := db.Migrate(ctx, d); err != nil {
		t.Fatal(err)
	}
	s := New(d.KV(), "")
	if err := s.Save(ctx, sampleState()); err != nil {
		t.Fatal(err)
	}
	st, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Users) != 2 || len(st.SupporterQueue) != 1 || st.SupporterQueue[0].Mult != 3 {
		t.Errorf("loaded = %+v", st)
	}
}
