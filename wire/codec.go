// Package wire implements the Base64(JSON) codec used by every x402 header.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/x402-foundation/x402exact/types"
)

// Encode serializes v to JSON and returns its standard Base64 encoding.
func Encode(v interface{}) (string, error) {
	if isNil(v) {
		return "", types.NewPaymentError(types.ErrCodeInvalidPayload, "cannot encode a nil value", nil)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", types.WrapPaymentError(types.ErrCodeInvalidPayload, "failed to marshal payload", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode into v, which must be a non-nil pointer.
func Decode(s string, v interface{}) error {
	if err := mustBePointer(v); err != nil {
		return err
	}
	data, err := decodeBase64(s)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "null" {
		return types.NewPaymentError(types.ErrCodeInvalidPayload, "decoded payload is null", nil)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.WrapPaymentError(types.ErrCodeInvalidPayload, "invalid JSON", err)
	}
	return nil
}

// DecodeRaw decodes s into a generic JSON object, for callers that need to
// shape-validate before binding to a struct.
func DecodeRaw(s string) (map[string]interface{}, error) {
	data, err := decodeBase64(s)
	if err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, types.WrapPaymentError(types.ErrCodeInvalidPayload, "invalid JSON", err)
	}
	if obj == nil {
		return nil, types.NewPaymentError(types.ErrCodeInvalidPayload, "decoded payload is null", nil)
	}
	return obj, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.NewPaymentError(types.ErrCodeInvalidPayload, "cannot decode an empty value", nil)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, types.WrapPaymentError(types.ErrCodeInvalidPayload, "invalid base64 encoding", err)
	}
	return data, nil
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func mustBePointer(v interface{}) error {
	if v == nil || reflect.ValueOf(v).Kind() != reflect.Ptr {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", v)
	}
	return nil
}
