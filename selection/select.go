// Package selection filters and ranks the payment requirements offered by a
// server against the client's constraints.
package selection

import (
	"sort"
	"strings"

	"github.com/x402-foundation/x402exact/types"
)

// Selection reasons reported in Diagnostics.
const (
	ReasonNoCandidates    = "no_candidates"
	ReasonSingleCandidate = "single_candidate"
	ReasonPolicySelected  = "policy_selected"
)

// AssetConstraint allows an asset, optionally capped at MaxAmount minor units.
type AssetConstraint struct {
	Asset     string `json:"asset"`
	MaxAmount string `json:"maxAmount,omitempty"`
}

// Constraints restrict which requirements the client is willing to pay.
// Empty lists allow everything.
type Constraints struct {
	AllowedNetworks []types.Network   `json:"allowedNetworks,omitempty"`
	AllowedAssets   []AssetConstraint `json:"allowedAssets,omitempty"`
}

// Diagnostics explains how a selection was reached. The filtered counts
// compose: TotalServerOptions equals the three filter counts plus
// CandidatesAfterFilter.
type Diagnostics struct {
	TotalServerOptions    int    `json:"totalServerOptions"`
	FilteredByScheme      int    `json:"filteredByScheme"`
	FilteredByNetwork     int    `json:"filteredByNetwork"`
	FilteredByAsset       int    `json:"filteredByAsset"`
	CandidatesAfterFilter int    `json:"candidatesAfterFilter"`
	SelectionReason       string `json:"selectionReason,omitempty"`
	ErrorCode             string `json:"errorCode,omitempty"`
	Error                 string `json:"error,omitempty"`
}

// Select filters accepts by scheme, network and asset, in that order, and
// ranks the survivors with policy. A nil policy means DefaultPolicy.
// The returned requirement is a copy; accepts is not modified.
func Select(accepts []types.PaymentRequirements, constraints Constraints, policy *Policy) (*types.PaymentRequirements, Diagnostics) {
	diagnostics := Diagnostics{TotalServerOptions: len(accepts)}

	byScheme := filter(accepts, func(r types.PaymentRequirements) bool {
		return r.Scheme == types.SchemeExact
	})
	diagnostics.FilteredByScheme = len(accepts) - len(byScheme)

	byNetwork := filter(byScheme, func(r types.PaymentRequirements) bool {
		return networkAllowed(r.Network, constraints.AllowedNetworks)
	})
	diagnostics.FilteredByNetwork = len(byScheme) - len(byNetwork)

	byAsset := filter(byNetwork, func(r types.PaymentRequirements) bool {
		return assetAllowed(r, constraints.AllowedAssets)
	})
	diagnostics.FilteredByAsset = len(byNetwork) - len(byAsset)
	diagnostics.CandidatesAfterFilter = len(byAsset)

	switch len(byAsset) {
	case 0:
		diagnostics.SelectionReason = ReasonNoCandidates
		diagnostics.ErrorCode = types.ErrCodeNoMatchingPaymentOption
		diagnostics.Error = "no matching payment option found after filtering"
		return nil, diagnostics
	case 1:
		diagnostics.SelectionReason = ReasonSingleCandidate
		chosen := byAsset[0]
		return &chosen, diagnostics
	}

	if policy == nil {
		policy = DefaultPolicy()
	}
	ranked := append([]types.PaymentRequirements(nil), byAsset...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return policy.compare(ranked[i], ranked[j]) < 0
	})

	diagnostics.SelectionReason = ReasonPolicySelected
	chosen := ranked[0]
	return &chosen, diagnostics
}

func filter(in []types.PaymentRequirements, keep func(types.PaymentRequirements) bool) []types.PaymentRequirements {
	out := make([]types.PaymentRequirements, 0, len(in))
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func networkAllowed(network types.Network, allowed []types.Network) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, n := range allowed {
		if n == network {
			return true
		}
	}
	return false
}

func assetAllowed(r types.PaymentRequirements, constraints []AssetConstraint) bool {
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if !strings.EqualFold(c.Asset, r.Asset) {
			continue
		}
		if c.MaxAmount == "" {
			return true
		}
		cmp, err := types.CompareAmounts(r.Amount, c.MaxAmount)
		if err == nil && cmp <= 0 {
			return true
		}
	}
	return false
}
