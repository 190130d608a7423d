package ledger

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parser errors. Callers must not touch queue state or tokens when Parse fails.
var (
	ErrNameRequired = errors.New("name required")
	ErrNameTooLong  = errors.New("name too long")
)

// DefaultMaxNameLength bounds request names when no limit is configured.
const DefaultMaxNameLength = 15

var (
	// the suffix must be its own token, or the whole input
	multiplierSuffix = regexp.MustCompile(`^(.*?)(?:^|\s+)[xX*](\d+)$`)
	categorySuffix   = regexp.MustCompile(`^(.*?)(?:^|\s+)[xX]([A-Za-z])$`)
)

// Request is a parsed admission input.
type Request struct {
	Name     string
	Cost     int
	Category Category
}

// Parser turns free-text chat input into a Request.
type Parser struct {
	MaxNameLength int
	// Costs prices the special categories. Categories missing from the map keep their
	// built-in price.
	Costs map[Category]int
}

// DefaultCosts are the built-in prices of special requests.
func DefaultCosts() map[Category]int {
	return map[Category]int{
		CategoryArty:      5,
		CategoryBlacklist: 3,
		CategoryTroll:     10,
	}
}

// categoryCodes maps the letter after a trailing "x" to its category. F is accepted
// as an alias of B for Blacklist.
var categoryCodes = map[byte]Category{
	'A': CategoryArty,
	'B': CategoryBlacklist,
	'F': CategoryBlacklist,
	'T': CategoryTroll,
}

// Parse reads raw as "<name> [xN|*N|xA|xB|xT]".
//
// A trailing special-category code always applies. forceMult1 (used for the normal lane)
// only disables numeric multipliers: "Tiger x3" then keeps "x3" as part of the name.
func (p Parser) Parse(raw string, forceMult1 bool) (Request, error) {
	s := strings.TrimSpace(raw)
	req := Request{Name: s, Cost: 1, Category: CategoryNormal}

	if m := categorySuffix.FindStringSubmatch(s); m != nil {
		code := strings.ToUpper(m[2])[0]
		if cat, ok := categoryCodes[code]; ok {
			req.Name = strings.TrimSpace(m[1])
			req.Category = cat
			req.Cost = p.cost(cat)
			return req, p.validate(req.Name)
		}
	}

	if !forceMult1 {
		if m := multiplierSuffix.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
				req.Name = strings.TrimSpace(m[1])
				req.Cost = n
			}
		}
	}
	return req, p.validate(req.Name)
}

func (p Parser) validate(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	limit := p.MaxNameLength
	if limit <= 0 {
		limit = DefaultMaxNameLength
	}
	if utf8.RuneCountInString(name) > limit {
		return ErrNameTooLong
	}
	return nil
}

func (p Parser) cost(c Category) int {
	if n, ok := p.Costs[c]; ok && n > 0 {
		return n
	}
	return DefaultCosts()[c]
}
