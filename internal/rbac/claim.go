package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// ClaimDelimiter separates the claim type from the claim value, as in "read:items".
// Only the first occurrence splits, so values may themselves contain colons.
const ClaimDelimiter = ":"

// Claim is a (type, value) permission grant.
type Claim struct {
	Type  string
	Value string
}

// NewClaim normalizes type and value.
func NewClaim(claimType, value string) (Claim, error) {
	c := Claim{Type: normalizePart(claimType), Value: normalizePart(value)}
	if c.Type == "" || c.Value == "" {
		return Claim{}, fmt.Errorf("%w: %q", ErrInvalidClaim, claimType+ClaimDelimiter+value)
	}
	return c, nil
}

// ParseClaim decodes "<type>:<value>".
func ParseClaim(raw string) (Claim, error) {
	claimType, value, ok := strings.Cut(raw, ClaimDelimiter)
	if !ok {
		return Claim{}, fmt.Errorf("%w: %q", ErrInvalidClaim, raw)
	}
	return NewClaim(claimType, value)
}

// ParseClaims decodes every claim string, deduplicating the result.
func ParseClaims(raw []string) ([]Claim, error) {
	seen := make(map[Claim]struct{}, len(raw))
	claims := make([]Claim, 0, len(raw))
	for _, r := range raw {
		c, err := ParseClaim(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		claims = append(claims, c)
	}
	return claims, nil
}

// String encodes the claim as "<type>:<value>".
func (c Claim) String() string {
	return c.Type + ClaimDelimiter + c.Value
}

func normalizePart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ClaimSet groups claim values by claim type.
type ClaimSet map[string]map[string]struct{}

// NewClaimSet builds a set from the "claims" map carried in snapshots.
func NewClaimSet(byType map[string][]string) ClaimSet {
	set := make(ClaimSet, len(byType))
	for claimType, values := range byType {
		for _, v := range values {
			if c, err := NewClaim(claimType, v); err == nil {
				set.Add(c)
			}
		}
	}
	return set
}

// Add inserts c.
func (s ClaimSet) Add(c Claim) {
	values, ok := s[c.Type]
	if !ok {
		values = make(map[string]struct{})
		s[c.Type] = values
	}
	values[c.Value] = struct{}{}
}

// Has reports membership of c.
func (s ClaimSet) Has(c Claim) bool {
	values, ok := s[c.Type]
	if !ok {
		return false
	}
	_, ok = values[c.Value]
	return ok
}

// Len returns the number of claims in the set.
func (s ClaimSet) Len() int {
	n := 0
	for _, values := range s {
		n += len(values)
	}
	return n
}

// Map returns the claims as type -> sorted values, the shape embedded in tokens.
func (s ClaimSet) Map() map[string][]string {
	out := make(map[string][]string, len(s))
	for claimType, values := range s {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		sort.Strings(list)
		out[claimType] = list
	}
	return out
}

// Strings returns every claim encoded and sorted.
func (s ClaimSet) Strings() []string {
	out := make([]string, 0, s.Len())
	for claimType, values := range s {
		for v := range values {
			out = append(out, Claim{Type: claimType, Value: v}.String())
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (s ClaimSet) Clone() ClaimSet {
	out := make(ClaimSet, len(s))
	for claimType, values := range s {
		cp := make(map[string]struct{}, len(values))
		for v := range values {
			cp[v] = struct{}{}
		}
		out[claimType] = cp
	}
	return out
}
