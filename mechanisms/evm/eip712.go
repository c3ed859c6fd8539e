package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402types "github.com/x402-foundation/x402exact/types"
)

// HashTypedData hashes EIP-712 typed data into the digest that gets signed
//
// The hash is computed as: keccak256("\x19\x01" + domainSeparator + structHash)
//
// Args:
//
//	domain: The EIP-712 domain separator parameters
//	types: The type definitions for the structured data
//	primaryType: The name of the primary type being hashed
//	message: The message data to hash
//
// Returns:
//
//	32-byte hash suitable for signing or verification
//	error if hashing fails
func HashTypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedData.Types[typeName] = toAPITypes(fields)
	}

	// Add EIP712Domain type if not present
	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = toAPITypes(domainFields)
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// Create EIP-712 digest: 0x19 0x01 <domainSeparator> <dataHash>
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}

var domainFields = []TypedDataField{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func toAPITypes(fields []TypedDataField) []apitypes.Type {
	out := make([]apitypes.Type, len(fields))
	for i, field := range fields {
		out[i] = apitypes.Type{Name: field.Name, Type: field.Type}
	}
	return out
}

// TransferWithAuthorizationTypes returns the EIP-712 type set signed for EIP-3009.
func TransferWithAuthorizationTypes() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"EIP712Domain": append([]TypedDataField(nil), domainFields...),
		PrimaryTypeTransferWithAuthorization: {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}
}

// NewDomain builds the token's EIP-712 domain. The verifying contract is the
// asset itself.
func NewDomain(name, version string, chainID *big.Int, asset string) TypedDataDomain {
	return TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress(asset).Hex(),
	}
}

// AuthorizationMessage converts a wire authorization into the EIP-712 message
// map. Integer fields must be base-10 strings and the nonce 32 bytes of hex.
func AuthorizationMessage(auth x402types.Authorization) (map[string]interface{}, error) {
	if !IsValidAddress(auth.From) {
		return nil, fmt.Errorf("invalid from address: %s", auth.From)
	}
	if !IsValidAddress(auth.To) {
		return nil, fmt.Errorf("invalid to address: %s", auth.To)
	}
	value, err := parseUint(auth.Value, "value")
	if err != nil {
		return nil, err
	}
	validAfter, err := parseUint(auth.ValidAfter, "validAfter")
	if err != nil {
		return nil, err
	}
	validBefore, err := parseUint(auth.ValidBefore, "validBefore")
	if err != nil {
		return nil, err
	}
	nonce, err := NonceBytes(auth.Nonce)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"from":        common.HexToAddress(auth.From).Hex(),
		"to":          common.HexToAddress(auth.To).Hex(),
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonce[:],
	}, nil
}

// HashTransferWithAuthorization hashes an EIP-3009 authorization under domain.
func HashTransferWithAuthorization(auth x402types.Authorization, domain TypedDataDomain) ([]byte, error) {
	message, err := AuthorizationMessage(auth)
	if err != nil {
		return nil, err
	}
	return HashTypedData(domain, TransferWithAuthorizationTypes(), PrimaryTypeTransferWithAuthorization, message)
}

// RecoverTypedDataAddress returns the checksummed address that produced
// signature over the typed data. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverTypedDataAddress(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
	signature []byte,
) (string, error) {
	if len(signature) != SignatureLength {
		return "", fmt.Errorf("invalid signature length: expected %d bytes, got %d", SignatureLength, len(signature))
	}

	digest, err := HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return "", err
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("invalid signature recovery id: %d", signature[64])
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// RecoverAuthorizationSigner recovers the signer of an EIP-3009 authorization.
func RecoverAuthorizationSigner(auth x402types.Authorization, domain TypedDataDomain, signature []byte) (string, error) {
	message, err := AuthorizationMessage(auth)
	if err != nil {
		return "", err
	}
	return RecoverTypedDataAddress(domain, TransferWithAuthorizationTypes(), PrimaryTypeTransferWithAuthorization, message, signature)
}

func parseUint(s, field string) (*big.Int, error) {
	v, err := x402types.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return v.ToBig(), nil
}
