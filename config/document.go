package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/x402-foundation/x402exact/types"
)

//go:embed schema.json
var schemaJSON []byte

var arrayFields = map[string]bool{
	"restrictedCalls":                  true,
	"acceptedPaymentOptionIdList":      true,
	"supportedAssetTransferMethodList": true,
}

// ParseDocument validates a raw JSON configuration document and binds it.
//
// The document is first checked against the embedded JSON schema; type and
// presence problems are reported as issues and no Configuration is returned.
// A structurally valid document is then bound and run through Validate.
// The returned error is reserved for input that is not JSON at all.
func ParseDocument(data []byte) (*Configuration, types.Outcome, error) {
	if !json.Valid(data) {
		return nil, types.Outcome{}, fmt.Errorf("configuration document is not valid JSON")
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, types.Outcome{}, fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		issues := make([]types.Issue, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			issues = append(issues, schemaIssue(re))
		}
		return nil, types.NewOutcome(issues), nil
	}

	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, types.Outcome{}, fmt.Errorf("failed to bind configuration: %w", err)
	}
	return &cfg, Validate(cfg), nil
}

func schemaIssue(re gojsonschema.ResultError) types.Issue {
	path := schemaPath(re.Field())
	if re.Type() == "required" {
		if property, ok := re.Details()["property"].(string); ok && property != "" && !strings.HasSuffix(path, property) {
			if path == "" {
				path = property
			} else {
				path = path + "." + property
			}
		}
	}

	code := types.ErrCodeInvalidConfiguration
	if re.Type() == "pattern" && strings.HasSuffix(path, "paymentNetworkId") {
		code = types.ErrCodeInvalidNetwork
	}

	message := fmt.Sprintf("%s: %s", path, re.Description())
	if path == "" {
		message = re.Description()
	}
	return types.NewIssue(path, code, message)
}

// schemaPath converts a gojsonschema field such as
// "restrictedCalls.0.acceptedPaymentOptionIdList" into
// "restrictedCalls[0].acceptedPaymentOptionIdList".
func schemaPath(field string) string {
	if field == "(root)" || field == "" {
		return ""
	}
	field = strings.TrimPrefix(field, "(root).")

	segments := strings.Split(field, ".")
	var b strings.Builder
	for i, segment := range segments {
		if i > 0 && arrayFields[segments[i-1]] && isIndex(segment) {
			b.WriteString("[" + segment + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(segment)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
