package ledger

import "strings"

// IdentityKind separates platform-assigned ids from name-derived placeholders.
type IdentityKind int

const (
	// Durable identities carry a platform user id.
	Durable IdentityKind = iota
	// Provisional identities are derived from a display name until a durable id is seen.
	Provisional
)

// Provisional identity sources. They double as key prefixes in the persisted map.
const (
	ProvisionalManual     = "manual"
	ProvisionalTipService = "se"
)

// mergeOrder is the order in which provisional entries are looked up when a durable id
// shows up for the first time.
var mergeOrder = []string{ProvisionalManual, ProvisionalTipService}

// Identity names a wallet in State.Users.
type Identity struct {
	Kind   IdentityKind
	Source string // provisional only
	Value  string // platform id, or normalized display name
}

// DurableID returns the identity of a platform user id.
func DurableID(id string) Identity {
	return Identity{Kind: Durable, Value: id}
}

// ProvisionalName returns the placeholder identity of name for the given source.
func ProvisionalName(source, name string) Identity {
	return Identity{Kind: Provisional, Source: source, Value: NormalizeName(name)}
}

// NormalizeName is the form of a display name used in provisional keys.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// Key returns the map key of the identity.
func (id Identity) Key() string {
	if id.Kind == Provisional {
		return id.Source + "_" + id.Value
	}
	return id.Value
}

// ParseKey recovers the identity stored under key.
func ParseKey(key string) Identity {
	for _, src := range mergeOrder {
		if rest, ok := strings.CutPrefix(key, src+"_"); ok {
			return Identity{Kind: Provisional, Source: src, Value: rest}
		}
	}
	return DurableID(key)
}

// MergeIdentity moves a provisional wallet to its durable key. It runs only when id is
// durable and not yet present in s; the provisional entry is looked up by the normalized
// displayName (manual first, then tip service). It returns the provisional key that was
// merged, or "" when nothing moved.
//
// Matching is exact on the lowercased name, so a user who renamed themselves between the
// two sightings is not merged.
func MergeIdentity(s *State, id Identity, displayName string) string {
	if id.Kind != Durable || id.Value == "" || NormalizeName(displayName) == "" {
		return ""
	}
	if _, exists := s.Users[id.Key()]; exists {
		return ""
	}
	for _, src := range mergeOrder {
		old := ProvisionalName(src, displayName).Key()
		if u, ok := s.Users[old]; ok {
			delete(s.Users, old)
			s.Users[id.Key()] = u
			return old
		}
	}
	return ""
}
