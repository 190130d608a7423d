package ledger

import (
	"math"
	"sort"
	"time"
)

// DefaultTTL is the lifespan of a credit when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// MaxGrant bounds a single credit, gift count or manual adjustment.
const MaxGrant = 1_000_000

func capGrant(n int) int {
	if n > MaxGrant {
		return MaxGrant
	}
	return n
}

// Ledger applies token operations to user wallets. TTL is the lifespan given to every
// new bucket; Now is the clock (time.Now when nil).
type Ledger struct {
	TTL time.Duration
	Now func() time.Time
}

// NewLedger returns a Ledger with the given TTL using the wall clock.
func NewLedger(ttl time.Duration) *Ledger {
	return &Ledger{TTL: ttl}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) ttl() time.Duration {
	if l.TTL <= 0 {
		return DefaultTTL
	}
	return l.TTL
}

// ActiveBalance sums the live buckets of u. Expired buckets are dropped from u as a
// side effect.
func (l *Ledger) ActiveBalance(u *User) int {
	if u == nil {
		return 0
	}
	l.PurgeExpired(u)
	sum := 0
	for _, b := range u.Buckets {
		if b.Amount > math.MaxInt-sum {
			return math.MaxInt
		}
		sum += b.Amount
	}
	return sum
}

// NextExpiry returns the earliest expiry among live buckets.
func (l *Ledger) NextExpiry(u *User) (time.Time, bool) {
	if u == nil {
		return time.Time{}, false
	}
	now := l.now()
	var next time.Time
	found := false
	for _, b := range u.Buckets {
		if !b.live(now) {
			continue
		}
		if !found || b.ExpiresAt.Before(next) {
			next = b.ExpiresAt
			found = true
		}
	}
	return next, found
}

// Consume deducts amount from u, spending the soonest-to-expire buckets first. It is
// all-or-nothing: when the live balance is short it returns false and u's buckets are
// left as they were (expired buckets are still purged).
func (l *Ledger) Consume(u *User, amount int) bool {
	if u == nil || amount < 0 {
		return false
	}
	if l.ActiveBalance(u) < amount {
		return false
	}
	if amount == 0 {
		return true
	}

	order := make([]int, len(u.Buckets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return u.Buckets[order[a]].ExpiresAt.Before(u.Buckets[order[b]].ExpiresAt)
	})

	remaining := amount
	for _, i := range order {
		if remaining == 0 {
			break
		}
		take := min(u.Buckets[i].Amount, remaining)
		u.Buckets[i].Amount -= take
		remaining -= take
	}

	kept := u.Buckets[:0]
	for _, b := range u.Buckets {
		if b.Amount > 0 {
			kept = append(kept, b)
		}
	}
	u.Buckets = kept
	return true
}

// Credit appends a new bucket of amount tokens expiring TTL from now. Buckets are never
// merged so distinct expiries stay distinct. Non-positive amounts are ignored.
func (l *Ledger) Credit(u *User, amount int, source string) {
	if u == nil || amount <= 0 {
		return
	}
	u.Buckets = append(u.Buckets, Bucket{
		Amount:    capGrant(amount),
		ExpiresAt: l.now().Add(l.ttl()),
		Source:    source,
	})
}

// PurgeExpired removes dead buckets (expired or empty) from u.
func (l *Ledger) PurgeExpired(u *User) {
	if u == nil {
		return
	}
	now := l.now()
	kept := make([]Bucket, 0, len(u.Buckets))
	for _, b := range u.Buckets {
		if b.live(now) {
			kept = append(kept, b)
		}
	}
	u.Buckets = kept
}

// Remove takes up to amount tokens from u and returns how many were removed.
func (l *Ledger) Remove(u *User, amount int) int {
	n := min(amount, l.ActiveBalance(u))
	if n <= 0 {
		return 0
	}
	if !l.Consume(u, n) {
		return 0
	}
	return n
}

// Sweep purges every user in s and deletes users left without buckets. It reports
// whether anything changed.
func (l *Ledger) Sweep(s *State) bool {
	changed := false
	for key, u := range s.Users {
		if u == nil {
			delete(s.Users, key)
			changed = true
			continue
		}
		before := len(u.Buckets)
		l.PurgeExpired(u)
		if len(u.Buckets) != before {
			changed = true
		}
		if len(u.Buckets) == 0 {
			delete(s.Users, key)
			changed = true
		}
	}
	return changed
}
