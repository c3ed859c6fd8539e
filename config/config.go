// Package config validates and prepares the server-side contract and
// payment-option catalogs.
//
// Validation and preparation are two separate phases: Validate collects every
// problem as issues, while PrepareCatalog assumes a validated configuration and
// fails fast on the first unresolved reference.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/x402-foundation/x402exact/types"
)

// DefaultMaxTimeoutSeconds applies to options that do not declare their own timeout.
const DefaultMaxTimeoutSeconds = 300

// ContractDescriptor describes an EIP-3009 capable token contract.
type ContractDescriptor struct {
	PaymentNetworkID                 string   `json:"paymentNetworkId" validate:"required,startswith=eip155:"`
	Address                          string   `json:"address" validate:"required"`
	Decimals                         int      `json:"decimals" validate:"gte=0,lte=77"`
	DomainName                       string   `json:"domainName" validate:"required"`
	DomainVersion                    string   `json:"domainVersion" validate:"required"`
	SupportedAssetTransferMethodList []string `json:"supportedAssetTransferMethodList,omitempty"`
}

// PaymentOption is a server-authored catalog entry.
type PaymentOption struct {
	ContractID               string `json:"contractId" validate:"required"`
	Amount                   string `json:"amount" validate:"required,amount"`
	PayTo                    string `json:"payTo" validate:"required"`
	MaxTimeoutSeconds        int    `json:"maxTimeoutSeconds,omitempty" validate:"gte=0"`
	AssetTransferMethod      string `json:"assetTransferMethod,omitempty"`
	ExpectedPaymentNetworkID string `json:"expectedPaymentNetworkId,omitempty"`
}

// RestrictedCall binds a callable surface (an HTTP route, gRPC method or MCP
// tool) to the payment options that unlock it.
type RestrictedCall struct {
	Method                      string   `json:"method"`
	Name                        string   `json:"name"`
	AcceptedPaymentOptionIDList []string `json:"acceptedPaymentOptionIdList"`
}

// Configuration bundles the catalogs consumed by the server.
type Configuration struct {
	ContractCatalog       map[string]ContractDescriptor `json:"contractCatalog"`
	PaymentOptionCatalog  map[string]PaymentOption      `json:"paymentOptionCatalog"`
	RestrictedCalls       []RestrictedCall              `json:"restrictedCalls,omitempty"`
	ServerPayToAddressMap map[string]string             `json:"serverPayToAddressMap,omitempty"`
}

// FindRestrictedCall returns the restricted call matching method and name.
// Method comparison is case-insensitive; name comparison is exact.
func (c *Configuration) FindRestrictedCall(method, name string) (RestrictedCall, bool) {
	for _, call := range c.RestrictedCalls {
		if strings.EqualFold(call.Method, method) && call.Name == name {
			return call, true
		}
	}
	return RestrictedCall{}, false
}

// PreparedPaymentOption is a PaymentOption with its payTo alias resolved and
// its network derived from the referenced contract.
type PreparedPaymentOption struct {
	ContractID              string
	Amount                  string
	PayTo                   string
	MaxTimeoutSeconds       int
	DerivedPaymentNetworkID types.Network
	AssetTransferMethod     string
}

// DisplayAmount renders the option amount using the contract's decimals.
func (p PreparedPaymentOption) DisplayAmount(contracts map[string]ContractDescriptor) string {
	contract, ok := contracts[p.ContractID]
	if !ok {
		return p.Amount
	}
	s, err := types.FormatAmount(p.Amount, contract.Decimals)
	if err != nil {
		return p.Amount
	}
	return s
}

// PreparedCatalog maps option ids to prepared options.
type PreparedCatalog map[string]PreparedPaymentOption

// IDs returns the catalog's option ids in sorted order.
func (c PreparedCatalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// aliasKey extracts name from a payTo of the exact form {{name}}.
func aliasKey(payTo string) (string, bool) {
	if strings.HasPrefix(payTo, "{{") && strings.HasSuffix(payTo, "}}") && len(payTo) >= 4 {
		key := payTo[2 : len(payTo)-2]
		if !hasPlaceholderBraces(key) {
			return key, true
		}
	}
	return "", false
}

func hasPlaceholderBraces(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "}}")
}

func optionPath(id, field string) string {
	return fmt.Sprintf("paymentOptionCatalog.%s.%s", id, field)
}

func contractPath(id, field string) string {
	return fmt.Sprintf("contractCatalog.%s.%s", id, field)
}
