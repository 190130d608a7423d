// Package ledger holds the in-memory bookkeeping of the tank request bot: expiring
// support-token buckets per user, the two request lanes (supporter and normal), the
// free-text request parser and the support event → token conversion.
//
// Nothing in this package performs I/O. The whole ledger is a single State value that
// callers load, mutate and save as one unit (see package store).
package ledger

import (
	"strings"
	"time"
)

// Lane identifies one of the two request queues.
type Lane int

const (
	// LaneNone is returned when nothing was dequeued.
	LaneNone Lane = iota
	// LaneSupporter is the token-funded priority lane.
	LaneSupporter
	// LaneNormal is the channel-point lane, served only when the supporter lane is empty.
	LaneNormal
)

// String returns the short tag used in chat replies.
func (l Lane) String() string {
	switch l {
	case LaneSupporter:
		return "[S]"
	case LaneNormal:
		return "[N]"
	default:
		return ""
	}
}

// Category tags a request with its pricing class.
type Category string

const (
	CategoryNormal    Category = "Normal"
	CategoryArty      Category = "Arty"
	CategoryBlacklist Category = "Blacklist"
	CategoryTroll     Category = "Troll"
)

// Special reports whether the category is priced as a fixed-cost special request.
func (c Category) Special() bool {
	switch c {
	case CategoryArty, CategoryBlacklist, CategoryTroll:
		return true
	}
	return false
}

// Bucket sources.
const (
	SourceCredit = "credit"
	SourceManual = "manual"
	SourceTest   = "test"
)

// State is the root document persisted as one blob.
type State struct {
	Users          map[string]*User `json:"users"`
	SupporterQueue []QueueItem      `json:"supporterQueue"`
	NormalQueue    []QueueItem      `json:"normalQueue"`
}

// NewState returns an empty ledger.
func NewState() *State {
	return &State{
		Users:          map[string]*User{},
		SupporterQueue: []QueueItem{},
		NormalQueue:    []QueueItem{},
	}
}

// Normalize replaces nil collections left behind by decoding a partial document.
func (s *State) Normalize() {
	if s.Users == nil {
		s.Users = map[string]*User{}
	}
	for k, u := range s.Users {
		if u == nil {
			s.Users[k] = &User{}
		}
	}
	if s.SupporterQueue == nil {
		s.SupporterQueue = []QueueItem{}
	}
	if s.NormalQueue == nil {
		s.NormalQueue = []QueueItem{}
	}
}

// User is the per-identity token wallet.
type User struct {
	UserName string   `json:"userName"`
	Buckets  []Bucket `json:"buckets"`
}

// Bucket is one token grant with its own expiry.
type Bucket struct {
	Amount    int       `json:"amount"`
	ExpiresAt time.Time `json:"expiresAtUtc"`
	Source    string    `json:"source"`
}

// live reports whether the bucket still counts towards a balance at now.
func (b Bucket) live(now time.Time) bool {
	return b.Amount > 0 && b.ExpiresAt.After(now)
}

// QueueItem is one admitted request.
type QueueItem struct {
	ID           string    `json:"id,omitempty"`
	User         string    `json:"user"`
	Tank         string    `json:"tank"`
	Mult         int       `json:"mult"`
	AdmittedAt   time.Time `json:"tsUtc"`
	Raw          string    `json:"raw"`
	TipAmount    string    `json:"tipAmount,omitempty"`
	RedemptionID string    `json:"redemptionId,omitempty"`
	RewardID     string    `json:"rewardId,omitempty"`
	SpecialType  Category  `json:"specialType,omitempty"`
}

// HasRedemption reports whether the item can be fulfilled or canceled on the platform.
func (q QueueItem) HasRedemption() bool {
	return q.RewardID != "" && q.RedemptionID != ""
}

// FindUserByName returns the identity key and user whose display name matches name
// case-insensitively. The first match in map iteration order wins.
func (s *State) FindUserByName(name string) (string, *User, bool) {
	for key, u := range s.Users {
		if u != nil && u.UserName != "" && strings.EqualFold(u.UserName, name) {
			return key, u, true
		}
	}
	return "", nil, false
}

// UserFor returns the user stored under key, creating it when absent. The display name
// is refreshed to the last-seen casing when name is non-empty.
func (s *State) UserFor(key, name string) *User {
	u, ok := s.Users[key]
	if !ok || u == nil {
		u = &User{Buckets: []Bucket{}}
		s.Users[key] = u
	}
	if name != "" {
		u.UserName = name
	}
	return u
}
