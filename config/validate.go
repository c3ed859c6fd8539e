package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/x402-foundation/x402exact/types"
)

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			_, err := types.ParseAmount(fl.Field().String())
			return err == nil
		})
		structValidator = v
	})
	return structValidator
}

// Validate checks the catalogs and restricted calls of cfg and reports every
// problem found. It never fails fast.
func Validate(cfg Configuration) types.Outcome {
	var issues []types.Issue

	if cfg.ContractCatalog == nil {
		issues = append(issues, types.NewIssue("contractCatalog", types.ErrCodeInvalidConfiguration, "contractCatalog is required"))
	} else {
		issues = append(issues, validateContractCatalog(cfg.ContractCatalog)...)
	}

	if cfg.PaymentOptionCatalog == nil {
		issues = append(issues, types.NewIssue("paymentOptionCatalog", types.ErrCodeInvalidConfiguration, "paymentOptionCatalog is required"))
	} else if cfg.ContractCatalog != nil {
		issues = append(issues, validatePaymentOptionCatalog(cfg.PaymentOptionCatalog, cfg.ContractCatalog)...)
	}

	if cfg.PaymentOptionCatalog != nil {
		issues = append(issues, validateRestrictedCalls(cfg.RestrictedCalls, cfg.PaymentOptionCatalog)...)
	}

	return types.NewOutcome(issues)
}

func validateContractCatalog(contracts map[string]ContractDescriptor) []types.Issue {
	var issues []types.Issue
	for _, id := range sortedKeys(contracts) {
		contract := contracts[id]
		issues = append(issues, structIssues(contract, func(field string) string {
			return contractPath(id, field)
		}, fmt.Sprintf("contract %s", id))...)
	}
	return issues
}

func validatePaymentOptionCatalog(options map[string]PaymentOption, contracts map[string]ContractDescriptor) []types.Issue {
	var issues []types.Issue
	for _, id := range sortedKeys(options) {
		option := options[id]
		issues = append(issues, structIssues(option, func(field string) string {
			return optionPath(id, field)
		}, fmt.Sprintf("payment option %s", id))...)

		if _, isAlias := aliasKey(option.PayTo); !isAlias && hasPlaceholderBraces(option.PayTo) {
			issues = append(issues, types.NewIssue(optionPath(id, "payTo"), types.ErrCodeInvalidConfiguration,
				fmt.Sprintf("payTo %q must be an address or a whole {{alias}}", option.PayTo)))
		}

		if option.ContractID == "" {
			continue
		}
		contract, found := contracts[option.ContractID]
		if !found {
			issues = append(issues, types.NewIssue(optionPath(id, "contractId"), types.ErrCodeInvalidConfiguration,
				fmt.Sprintf("contractId %q not found in contractCatalog", option.ContractID)))
			continue
		}

		if option.AssetTransferMethod != "" && contract.SupportedAssetTransferMethodList != nil &&
			!contains(contract.SupportedAssetTransferMethodList, option.AssetTransferMethod) {
			issues = append(issues, types.NewIssue(optionPath(id, "assetTransferMethod"), types.ErrCodeInvalidConfiguration,
				fmt.Sprintf("assetTransferMethod %q is not in contract's supportedAssetTransferMethodList", option.AssetTransferMethod)))
		}

		if option.ExpectedPaymentNetworkID != "" && option.ExpectedPaymentNetworkID != contract.PaymentNetworkID {
			issues = append(issues, types.Issue{
				Path: optionPath(id, "expectedPaymentNetworkId"),
				Code: types.ErrCodeInvalidNetwork,
				Message: fmt.Sprintf("expectedPaymentNetworkId %q does not match derived network %q",
					option.ExpectedPaymentNetworkID, contract.PaymentNetworkID),
				Meta: map[string]interface{}{
					"expected": option.ExpectedPaymentNetworkID,
					"derived":  contract.PaymentNetworkID,
				},
			})
		}
	}
	return issues
}

func validateRestrictedCalls(calls []RestrictedCall, options map[string]PaymentOption) []types.Issue {
	var issues []types.Issue
	for i, call := range calls {
		base := fmt.Sprintf("restrictedCalls[%d].acceptedPaymentOptionIdList", i)
		if call.AcceptedPaymentOptionIDList == nil {
			issues = append(issues, types.NewIssue(base, types.ErrCodeInvalidConfiguration, "acceptedPaymentOptionIdList is required"))
			continue
		}
		for j, optionID := range call.AcceptedPaymentOptionIDList {
			if _, found := options[optionID]; !found {
				issues = append(issues, types.NewIssue(fmt.Sprintf("%s[%d]", base, j), types.ErrCodeInvalidConfiguration,
					fmt.Sprintf("payment option %q not found in paymentOptionCatalog", optionID)))
			}
		}
	}
	return issues
}

// structIssues runs the struct-tag rules and maps each failure to an issue at pathFor(jsonField).
func structIssues(v interface{}, pathFor func(string) string, owner string) []types.Issue {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []types.Issue{types.NewIssue(pathFor(""), types.ErrCodeInvalidConfiguration, err.Error())}
	}

	issues := make([]types.Issue, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		field := fe.Field()
		path := pathFor(field)
		switch fe.Tag() {
		case "required":
			issues = append(issues, types.NewIssue(path, types.ErrCodeInvalidConfiguration,
				fmt.Sprintf("%s is required for %s", field, owner)))
		case "startswith":
			issues = append(issues, types.NewIssue(path, types.ErrCodeInvalidNetwork,
				fmt.Sprintf("%s must start with %q, got %q", field, fe.Param(), fe.Value())))
		case "amount":
			issues = append(issues, types.NewIssue(path, types.ErrCodeInvalidConfiguration,
				fmt.Sprintf("%s must be a base-10 integer of minor units, got %q", field, fe.Value())))
		default:
			issues = append(issues, types.NewIssue(path, types.ErrCodeInvalidConfiguration,
				fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())))
		}
	}
	return issues
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
