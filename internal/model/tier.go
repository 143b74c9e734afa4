package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier is a quality/cost/latency class of language-model backend.
type Tier string

const (
	TierFast   Tier = "fast"
	TierPro    Tier = "pro"
	TierExpert Tier = "expert"
)

// DefaultTier is used when a request does not name a tier.
const DefaultTier = TierPro

// Tiers lists every known tier, cheapest first.
var Tiers = []Tier{TierFast, TierPro, TierExpert}

// ParseTier maps a user-supplied tier name to a Tier. The empty string
// resolves to DefaultTier.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultTier, nil
	}
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", eris.Errorf("model: unknown tier %q", s)
}
