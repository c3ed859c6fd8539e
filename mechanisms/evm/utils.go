package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HexToBytes decodes a hex string with or without a single 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// BytesToHex encodes b as a 0x-prefixed lower-case hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// CreateNonce returns 32 random bytes as a 0x-prefixed hex string.
func CreateNonce() (string, error) {
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return BytesToHex(nonce), nil
}

// NonceBytes decodes an EIP-3009 nonce, which must be exactly 32 bytes.
func NonceBytes(nonce string) ([32]byte, error) {
	var out [32]byte
	b, err := HexToBytes(nonce)
	if err != nil {
		return out, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(b) != NonceLength {
		return out, fmt.Errorf("invalid nonce: expected %d bytes, got %d", NonceLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// IsCanonicalNonce reports whether nonce is "0x" followed by exactly 64 hex digits.
func IsCanonicalNonce(nonce string) bool {
	if len(nonce) != 2+2*NonceLength || !strings.HasPrefix(nonce, "0x") {
		return false
	}
	_, err := hex.DecodeString(nonce[2:])
	return err == nil
}

// IsValidAddress reports whether s is a 20-byte hex address with 0x prefix.
func IsValidAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress returns the lower-case form of an address for comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return IsValidAddress(a) && IsValidAddress(b) && NormalizeAddress(a) == NormalizeAddress(b)
}
