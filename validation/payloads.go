package validation

import (
	"fmt"

	"github.com/x402-foundation/x402exact/types"
)

var (
	requirementStringFields = []string{"scheme", "network", "amount", "asset", "payTo"}
	acceptedStringFields    = []string{"scheme", "network", "amount", "asset", "payTo"}
	authorizationFields     = []string{"from", "to", "value", "validAfter", "validBefore", "nonce"}
	settlementSuccessFields = []string{"transaction", "network", "payer"}
)

// ValidatePaymentRequired checks a PAYMENT-REQUIRED payload.
func ValidatePaymentRequired(v interface{}) types.Outcome {
	c := &checker{}
	obj, ok := toObject(v)
	if !ok {
		c.add("", types.ErrCodeInvalidPayload, "payment required payload must be an object")
		return c.outcome()
	}

	c.requireVersion(obj)
	c.requireString(obj, "", "resource", types.ErrCodeInvalidPayload)

	raw, exists := obj["accepts"]
	switch accepts, isList := raw.([]interface{}); {
	case !exists || raw == nil:
		c.add("accepts", types.ErrCodeInvalidPaymentRequirements, "accepts is required")
	case !isList:
		c.add("accepts", types.ErrCodeInvalidPaymentRequirements, "accepts must be an array")
	case len(accepts) == 0:
		c.add("accepts", types.ErrCodeInvalidPaymentRequirements, "accepts must not be empty")
	default:
		for i, entry := range accepts {
			c.checkRequirement(entry, fmt.Sprintf("accepts[%d]", i))
		}
	}

	if rawErr, exists := obj["error"]; exists && rawErr != nil {
		if _, isString := rawErr.(string); !isString {
			c.add("error", types.ErrCodeInvalidPayload, "error must be a string")
		}
	}

	return c.outcome()
}

func (c *checker) checkRequirement(entry interface{}, path string) {
	requirement, ok := entry.(map[string]interface{})
	if !ok {
		c.add(path, types.ErrCodeInvalidPaymentRequirements, fmt.Sprintf("%s must be an object", path))
		return
	}
	for _, field := range requirementStringFields {
		c.requireString(requirement, path, field, types.ErrCodeInvalidPaymentRequirements)
	}
	c.requireNumber(requirement, path, "maxTimeoutSeconds", types.ErrCodeInvalidPaymentRequirements)

	if scheme, isString := requirement["scheme"].(string); isString && scheme != "" && scheme != types.SchemeExact {
		c.add(path+".scheme", types.ErrCodeInvalidPaymentRequirements,
			fmt.Sprintf("%s.scheme must be %q, got %q", path, types.SchemeExact, scheme))
	}
	if extra, exists := requirement["extra"]; exists && extra != nil {
		if _, isObject := extra.(map[string]interface{}); !isObject {
			c.add(path+".extra", types.ErrCodeInvalidPaymentRequirements, fmt.Sprintf("%s.extra must be an object", path))
		}
	}
}

// ValidatePaymentPayload checks a PAYMENT-SIGNATURE payload.
func ValidatePaymentPayload(v interface{}) types.Outcome {
	c := &checker{}
	obj, ok := toObject(v)
	if !ok {
		c.add("", types.ErrCodeInvalidPayload, "payment payload must be an object")
		return c.outcome()
	}

	c.requireVersion(obj)
	c.requireString(obj, "", "resource", types.ErrCodeInvalidPayload)

	if accepted, ok := c.requireObject(obj, "", "accepted", types.ErrCodeInvalidPayload); ok {
		for _, field := range acceptedStringFields {
			c.requireString(accepted, "accepted", field, types.ErrCodeInvalidPayload)
		}
	}

	payload, ok := c.requireObject(obj, "", "payload", types.ErrCodeInvalidPayload)
	if !ok {
		return c.outcome()
	}
	c.requireString(payload, "payload", "signature", types.ErrCodeInvalidExactEvmPayloadSignature)
	if authorization, ok := c.requireObject(payload, "payload", "authorization", types.ErrCodeInvalidPayload); ok {
		for _, field := range authorizationFields {
			c.requireString(authorization, "payload.authorization", field, types.ErrCodeInvalidPayload)
		}
	}

	return c.outcome()
}

// ValidateSettlementResponse checks a PAYMENT-RESPONSE payload.
func ValidateSettlementResponse(v interface{}) types.Outcome {
	c := &checker{}
	obj, ok := toObject(v)
	if !ok {
		c.add("", types.ErrCodeInvalidPayload, "settlement response must be an object")
		return c.outcome()
	}

	raw, exists := obj["success"]
	success, isBool := raw.(bool)
	if !exists || !isBool {
		c.add("success", types.ErrCodeInvalidPayload, "success must be a boolean")
		return c.outcome()
	}

	if success {
		for _, field := range settlementSuccessFields {
			c.requireString(obj, "", field, types.ErrCodeInvalidPayload)
		}
	} else {
		c.requireString(obj, "", "errorReason", types.ErrCodeInvalidPayload)
	}

	return c.outcome()
}
