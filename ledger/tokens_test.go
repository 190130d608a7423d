package ledger

import (
	"math"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedLedger(now time.Time) *Ledger {
	return &Ledger{TTL: 24 * time.Hour, Now: func() time.Time { return now }}
}

func TestActiveBalanceIgnoresDeadBuckets(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{Buckets: []Bucket{
		{Amount: 2, ExpiresAt: t0.Add(time.Hour)},
		{Amount: 5, ExpiresAt: t0},                   // expires exactly now
		{Amount: 7, ExpiresAt: t0.Add(-time.Minute)}, // expired
		{Amount: 0, ExpiresAt: t0.Add(time.Hour)},    // empty
		{Amount: 3, ExpiresAt: t0.Add(2 * time.Hour)},
	}}
	if got := l.ActiveBalance(u); got != 5 {
		t.Fatalf("ActiveBalance = %d, want 5", got)
	}
	if len(u.Buckets) != 2 {
		t.Errorf("expected expired buckets to be dropped, have %d buckets", len(u.Buckets))
	}
	if got := l.ActiveBalance(&User{}); got != 0 {
		t.Errorf("empty user balance = %d, want 0", got)
	}
	if got := l.ActiveBalance(nil); got != 0 {
		t.Errorf("nil user balance = %d, want 0", got)
	}
}

func TestNextExpiry(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{Buckets: []Bucket{
		{Amount: 1, ExpiresAt: t0.Add(3 * time.Hour)},
		{Amount: 0, ExpiresAt: t0.Add(time.Minute)},
		{Amount: 1, ExpiresAt: t0.Add(-time.Hour)},
		{Amount: 4, ExpiresAt: t0.Add(2 * time.Hour)},
	}}
	got, ok := l.NextExpiry(u)
	if !ok || !got.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("NextExpiry = %v,%v want %v", got, ok, t0.Add(2*time.Hour))
	}
	if _, ok := l.NextExpiry(&User{}); ok {
		t.Errorf("expected no expiry for empty wallet")
	}
}

func TestConsumeSpendsSoonestExpiryFirst(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{Buckets: []Bucket{
		{Amount: 3, ExpiresAt: t0.Add(5 * time.Hour), Source: "late"},
		{Amount: 2, ExpiresAt: t0.Add(1 * time.Hour), Source: "early"},
		{Amount: 4, ExpiresAt: t0.Add(3 * time.Hour), Source: "mid"},
	}}
	if !l.Consume(u, 4) {
		t.Fatalf("Consume(4) failed with balance 9")
	}
	want := []Bucket{
		{Amount: 3, ExpiresAt: t0.Add(5 * time.Hour), Source: "late"},
		{Amount: 2, ExpiresAt: t0.Add(3 * time.Hour), Source: "mid"},
	}
	if !reflect.DeepEqual(u.Buckets, want) {
		t.Errorf("buckets after consume = %+v, want %+v", u.Buckets, want)
	}
}

func TestConsumeIsAllOrNothing(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{Buckets: []Bucket{
		{Amount: 1, ExpiresAt: t0.Add(time.Hour), Source: SourceCredit},
		{Amount: 1, ExpiresAt: t0.Add(2 * time.Hour), Source: SourceManual},
	}}
	before := append([]Bucket(nil), u.Buckets...)
	if l.Consume(u, 3) {
		t.Fatalf("Consume(3) succeeded with balance 2")
	}
	if !reflect.DeepEqual(u.Buckets, before) {
		t.Errorf("failed consume mutated buckets: %+v", u.Buckets)
	}
	if l.Consume(u, -1) {
		t.Errorf("negative consume should fail")
	}
}

func TestConsumeOneAtATimeMatchesBulk(t *testing.T) {
	orders := [][]time.Duration{
		{time.Hour, 2 * time.Hour, 3 * time.Hour},
		{3 * time.Hour, time.Hour, 2 * time.Hour},
		{2 * time.Hour, 3 * time.Hour, time.Hour},
	}
	amounts := []int{2, 3, 4}
	for _, order := range orders {
		mk := func() *User {
			u := &User{}
			for i, d := range order {
				u.Buckets = append(u.Buckets, Bucket{Amount: amounts[i], ExpiresAt: t0.Add(d)})
			}
			return u
		}
		l := fixedLedger(t0)
		single, bulk := mk(), mk()
		for i := 0; i < 7; i++ {
			if !l.Consume(single, 1) {
				t.Fatalf("single consume %d failed", i)
			}
		}
		if !l.Consume(bulk, 7) {
			t.Fatalf("bulk consume failed")
		}
		if a, b := l.ActiveBalance(single), l.ActiveBalance(bulk); a != 2 || b != 2 {
			t.Errorf("balances single=%d bulk=%d, want 2 and 2", a, b)
		}
		if !reflect.DeepEqual(single.Buckets, bulk.Buckets) {
			t.Errorf("order %v: single %+v != bulk %+v", order, single.Buckets, bulk.Buckets)
		}
	}
}

func TestCreditThenBalance(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{}
	l.Credit(u, 6, SourceCredit)
	if got := l.ActiveBalance(u); got != 6 {
		t.Fatalf("balance after credit = %d, want 6", got)
	}
	l.Credit(u, 1, SourceManual)
	if len(u.Buckets) != 2 {
		t.Errorf("credits must not merge, got %d buckets", len(u.Buckets))
	}
	if !u.Buckets[0].ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("expiry = %v, want now+TTL", u.Buckets[0].ExpiresAt)
	}
	l.Credit(u, 0, SourceManual)
	if len(u.Buckets) != 2 {
		t.Errorf("zero credit should be ignored")
	}
}

func TestBalanceNeverWraps(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{}
	l.Credit(u, math.MaxInt, SourceManual)
	if got := l.ActiveBalance(u); got != MaxGrant {
		t.Fatalf("oversized credit balance = %d, want %d", got, MaxGrant)
	}

	live := t0.Add(time.Hour)
	u = &User{Buckets: []Bucket{{Amount: math.MaxInt, ExpiresAt: live}, {Amount: 1, ExpiresAt: live}}}
	if got := l.ActiveBalance(u); got != math.MaxInt {
		t.Errorf("saturated balance = %d, want %d", got, math.MaxInt)
	}
}

func TestCreditExpiresAfterTTL(t *testing.T) {
	now := t0
	l := &Ledger{TTL: time.Hour, Now: func() time.Time { return now }}
	u := &User{}
	l.Credit(u, 3, SourceCredit)
	now = t0.Add(59 * time.Minute)
	if got := l.ActiveBalance(u); got != 3 {
		t.Fatalf("balance before expiry = %d, want 3", got)
	}
	now = t0.Add(time.Hour)
	if got := l.ActiveBalance(u); got != 0 {
		t.Fatalf("balance at expiry = %d, want 0", got)
	}
	if l.Consume(u, 1) {
		t.Errorf("consume of expired tokens succeeded")
	}
}

func TestRemove(t *testing.T) {
	l := fixedLedger(t0)
	u := &User{}
	l.Credit(u, 4, SourceManual)
	if got := l.Remove(u, 3); got != 3 {
		t.Errorf("Remove(3) = %d, want 3", got)
	}
	if got := l.Remove(u, 10); got != 1 {
		t.Errorf("Remove(10) = %d, want 1 (bounded by balance)", got)
	}
	if got := l.Remove(u, 1); got != 0 {
		t.Errorf("Remove on empty wallet = %d, want 0", got)
	}
}

func TestSweepDropsEmptyUsers(t *testing.T) {
	l := fixedLedger(t0)
	s := NewState()
	s.Users["1"] = &User{UserName: "alive", Buckets: []Bucket{{Amount: 1, ExpiresAt: t0.Add(time.Hour)}}}
	s.Users["2"] = &User{UserName: "gone", Buckets: []Bucket{{Amount: 1, ExpiresAt: t0.Add(-time.Hour)}}}
	s.Users["3"] = &User{UserName: "empty"}
	if !l.Sweep(s) {
		t.Fatalf("Sweep reported no change")
	}
	if len(s.Users) != 1 || s.Users["1"] == nil {
		t.Errorf("users after sweep = %v", s.Users)
	}
	if l.Sweep(s) {
		t.Errorf("second sweep should be a no-op")
	}
}
