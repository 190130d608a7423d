package bot

import (
	"strconv"
	"strings"
)

// Args is the flat argument bag a host hands over per invocation. Field presence varies
// by event kind; every accessor tolerates missing or malformed values.
type Args map[string]string

// Get returns the trimmed value of key.
func (a Args) Get(key string) string { return strings.TrimSpace(a[key]) }

// First returns the first non-empty value among keys.
func (a Args) First(keys ...string) string {
	for _, k := range keys {
		if v := a.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Has reports whether key carries a non-empty value.
func (a Args) Has(key string) bool { return a.Get(key) != "" }

// Int parses key as an integer, 0 when absent or malformed.
func (a Args) Int(key string) int {
	n, err := strconv.Atoi(a.Get(key))
	if err != nil {
		return 0
	}
	return n
}

// Float parses key as a decimal number. Either "." or "," may be the decimal mark; the
// other one is taken as a thousands separator.
func (a Args) Float(key string) float64 {
	f, err := strconv.ParseFloat(normalizeDecimal(a.Get(key)), 64)
	if err != nil {
		return 0
	}
	return f
}

// normalizeDecimal rewrites "1,234.50", "1.234,50" and "4,50" as "1234.50", "1234.50"
// and "4.50". A lone comma is a decimal mark; several commas without a dot group thousands.
func normalizeDecimal(v string) string {
	dot, comma := strings.LastIndex(v, "."), strings.LastIndex(v, ",")
	switch {
	case comma < 0:
		return v
	case dot > comma:
		return strings.ReplaceAll(v, ",", "")
	case dot >= 0 || strings.Count(v, ",") == 1:
		return strings.Replace(strings.ReplaceAll(v, ".", ""), ",", ".", 1)
	default:
		return strings.ReplaceAll(v, ",", "")
	}
}

// Bool accepts "true" in any casing and "1".
func (a Args) Bool(key string) bool {
	v := a.Get(key)
	return strings.EqualFold(v, "true") || v == "1"
}

// Caller is whoever triggered the invocation.
type Caller struct {
	UserID     string
	UserName   string
	Privileged bool // moderator or broadcaster
}

func callerFrom(a Args) Caller {
	return Caller{
		UserID:     a.Get("userId"),
		UserName:   strings.TrimPrefix(a.Get("userName"), "@"),
		Privileged: a.Bool("isModerator") || a.Bool("isBroadcaster") || strings.EqualFold(a.Get("userType"), "broadcaster"),
	}
}
