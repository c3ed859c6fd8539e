package selection

import (
	"strings"

	"github.com/x402-foundation/x402exact/types"
)

// Tie breakers applied after network and asset preference.
const (
	TieBreakLowestAmount = "lowest-amount"
	TieBreakNone         = "none"
)

// Policy ranks candidates that survived filtering.
type Policy struct {
	PreferredNetworkOrder []types.Network `json:"preferredNetworkOrder,omitempty"`
	PreferredAssetOrder   []string        `json:"preferredAssetOrder,omitempty"`
	TieBreaker            string          `json:"tieBreaker,omitempty"`
}

// DefaultPolicy has no preferences and breaks ties on the lowest amount.
func DefaultPolicy() *Policy {
	return &Policy{TieBreaker: TieBreakLowestAmount}
}

// compare orders a before b when it returns a negative number. The final
// network:asset comparison makes the order total.
func (p *Policy) compare(a, b types.PaymentRequirements) int {
	if c := compareRank(networkRank(p.PreferredNetworkOrder, a.Network), networkRank(p.PreferredNetworkOrder, b.Network)); c != 0 {
		return c
	}
	if c := compareRank(assetRank(p.PreferredAssetOrder, a.Asset), assetRank(p.PreferredAssetOrder, b.Asset)); c != 0 {
		return c
	}

	tieBreaker := p.TieBreaker
	if tieBreaker == "" {
		tieBreaker = TieBreakLowestAmount
	}
	if tieBreaker == TieBreakLowestAmount {
		if c := compareAmounts(a.Amount, b.Amount); c != 0 {
			return c
		}
	}

	return strings.Compare(string(a.Network)+":"+a.Asset, string(b.Network)+":"+b.Asset)
}

// networkRank returns the index in order, or len(order) when absent so that
// unlisted networks rank after listed ones.
func networkRank(order []types.Network, network types.Network) int {
	for i, n := range order {
		if n == network {
			return i
		}
	}
	return len(order)
}

func assetRank(order []string, asset string) int {
	for i, a := range order {
		if strings.EqualFold(a, asset) {
			return i
		}
	}
	return len(order)
}

func compareRank(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareAmounts ranks unparsable amounts after parsable ones.
func compareAmounts(a, b string) int {
	av, aErr := types.ParseAmount(a)
	bv, bErr := types.ParseAmount(b)
	switch {
	case aErr != nil && bErr != nil:
		return 0
	case aErr != nil:
		return 1
	case bErr != nil:
		return -1
	}
	return av.Cmp(bv)
}
