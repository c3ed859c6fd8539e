// Package validation checks the structure of the three x402 v2 payloads.
//
// Validators accept either typed values from the types package or generic
// objects produced by wire.DecodeRaw, and always collect every issue rather
// than stopping at the first one.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/x402-foundation/x402exact/types"
)

// checker accumulates issues for one object.
type checker struct {
	issues []types.Issue
}

func (c *checker) add(path, code, message string) {
	c.issues = append(c.issues, types.NewIssue(path, code, message))
}

func (c *checker) outcome() types.Outcome {
	return types.NewOutcome(c.issues)
}

// toObject normalizes v into a generic JSON object. Typed structs are
// round-tripped through encoding/json so both input forms see identical rules.
func toObject(v interface{}) (map[string]interface{}, bool) {
	switch obj := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		return obj, obj != nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func join(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

// requireString checks that obj[field] is a non-empty string.
func (c *checker) requireString(obj map[string]interface{}, base, field, code string) (string, bool) {
	path := join(base, field)
	raw, exists := obj[field]
	if !exists || raw == nil {
		c.add(path, code, fmt.Sprintf("%s is required", path))
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, code, fmt.Sprintf("%s must be a string", path))
		return "", false
	}
	if s == "" {
		c.add(path, code, fmt.Sprintf("%s must not be empty", path))
		return "", false
	}
	return s, true
}

func (c *checker) requireNumber(obj map[string]interface{}, base, field, code string) (float64, bool) {
	path := join(base, field)
	raw, exists := obj[field]
	if !exists || raw == nil {
		c.add(path, code, fmt.Sprintf("%s is required", path))
		return 0, false
	}
	n, ok := raw.(float64)
	if !ok {
		c.add(path, code, fmt.Sprintf("%s must be a number", path))
		return 0, false
	}
	return n, true
}

func (c *checker) requireObject(obj map[string]interface{}, base, field, code string) (map[string]interface{}, bool) {
	path := join(base, field)
	raw, exists := obj[field]
	if !exists || raw == nil {
		c.add(path, code, fmt.Sprintf("%s is required", path))
		return nil, false
	}
	child, ok := raw.(map[string]interface{})
	if !ok {
		c.add(path, code, fmt.Sprintf("%s must be an object", path))
		return nil, false
	}
	return child, true
}

func (c *checker) requireVersion(obj map[string]interface{}) {
	raw, exists := obj["x402Version"]
	if !exists || raw == nil {
		c.add("x402Version", types.ErrCodeInvalidPayload, "x402Version is required")
		return
	}
	if n, ok := raw.(float64); !ok || n != types.X402Version {
		c.add("x402Version", types.ErrCodeInvalidPayload,
			fmt.Sprintf("x402Version must be %d", types.X402Version))
	}
}
