package config

import (
	"fmt"

	"github.com/x402-foundation/x402exact/types"
)

// PrepareCatalog resolves payTo aliases against payToMap, derives each
// option's network from its contract and applies defaultTimeout to options
// without one. A non-positive defaultTimeout means DefaultMaxTimeoutSeconds.
//
// It is meant to run after Validate has passed and returns an error on the
// first unresolved alias or contract reference.
func PrepareCatalog(
	options map[string]PaymentOption,
	payToMap map[string]string,
	defaultTimeout int,
	contracts map[string]ContractDescriptor,
) (PreparedCatalog, error) {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultMaxTimeoutSeconds
	}

	prepared := make(PreparedCatalog, len(options))
	for _, id := range sortedKeys(options) {
		option := options[id]

		payTo := option.PayTo
		if alias, isAlias := aliasKey(payTo); isAlias {
			resolved, found := payToMap[alias]
			if !found || resolved == "" {
				return nil, fmt.Errorf("payTo alias %q not found in serverPayToAddressMap", alias)
			}
			payTo = resolved
		}
		if hasPlaceholderBraces(payTo) {
			return nil, fmt.Errorf("payment option %q has unresolved placeholder in payTo %q", id, payTo)
		}

		contract, found := contracts[option.ContractID]
		if !found {
			return nil, fmt.Errorf("contract %q not found in contractCatalog", option.ContractID)
		}

		timeout := option.MaxTimeoutSeconds
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		prepared[id] = PreparedPaymentOption{
			ContractID:              option.ContractID,
			Amount:                  option.Amount,
			PayTo:                   payTo,
			MaxTimeoutSeconds:       timeout,
			DerivedPaymentNetworkID: types.Network(contract.PaymentNetworkID),
			AssetTransferMethod:     option.AssetTransferMethod,
		}
	}
	return prepared, nil
}

// BuildRequirement renders a prepared option as a PaymentRequirement.
func BuildRequirement(option PreparedPaymentOption, contracts map[string]ContractDescriptor) (types.PaymentRequirements, error) {
	contract, found := contracts[option.ContractID]
	if !found {
		return types.PaymentRequirements{}, fmt.Errorf("contract %q not found in contractCatalog", option.ContractID)
	}
	method := option.AssetTransferMethod
	if method == "" {
		method = types.AssetTransferMethodEIP3009
	}
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           option.DerivedPaymentNetworkID,
		Amount:            option.Amount,
		Asset:             contract.Address,
		PayTo:             option.PayTo,
		MaxTimeoutSeconds: option.MaxTimeoutSeconds,
		Extra: &types.RequirementExtra{
			Name:                contract.DomainName,
			Version:             contract.DomainVersion,
			AssetTransferMethod: method,
		},
	}, nil
}

// BuildPaymentRequired renders the options named by optionIDs, in order, as a
// PaymentRequired payload for resource.
func BuildPaymentRequired(
	resource string,
	optionIDs []string,
	prepared PreparedCatalog,
	contracts map[string]ContractDescriptor,
) (types.PaymentRequired, error) {
	accepts := make([]types.PaymentRequirements, 0, len(optionIDs))
	for _, id := range optionIDs {
		option, found := prepared[id]
		if !found {
			return types.PaymentRequired{}, fmt.Errorf("payment option %q not found in prepared catalog", id)
		}
		requirement, err := BuildRequirement(option, contracts)
		if err != nil {
			return types.PaymentRequired{}, err
		}
		accepts = append(accepts, requirement)
	}
	return types.PaymentRequired{
		X402Version: types.X402Version,
		Resource:    resource,
		Accepts:     accepts,
	}, nil
}
