package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	x402types "github.com/x402-foundation/x402exact/types"
)

var (
	abiOnce      sync.Once
	transferABI  abi.ABI
	balanceOfABI abi.ABI
	abiErr       error
)

func parsedABIs() (abi.ABI, abi.ABI, error) {
	abiOnce.Do(func() {
		transferABI, abiErr = abi.JSON(bytes.NewReader(TransferWithAuthorizationVRSABI))
		if abiErr != nil {
			return
		}
		balanceOfABI, abiErr = abi.JSON(bytes.NewReader(ERC20BalanceOfABI))
	})
	return transferABI, balanceOfABI, abiErr
}

// SplitSignature splits a 65-byte r || s || v signature. A 0/1 recovery id
// is normalized to 27/28.
func SplitSignature(signature []byte) (SignatureParts, error) {
	var parts SignatureParts
	if len(signature) != SignatureLength {
		return parts, fmt.Errorf("invalid signature length: expected %d bytes, got %d", SignatureLength, len(signature))
	}
	copy(parts.R[:], signature[0:32])
	copy(parts.S[:], signature[32:64])
	parts.V = signature[64]
	if parts.V < 27 {
		parts.V += 27
	}
	return parts, nil
}

// PackTransferWithAuthorization ABI-encodes the transferWithAuthorization call
// for a signed authorization.
func PackTransferWithAuthorization(auth x402types.Authorization, signatureHex string) ([]byte, error) {
	contractABI, _, err := parsedABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	signature, err := HexToBytes(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	parts, err := SplitSignature(signature)
	if err != nil {
		return nil, err
	}

	if !IsValidAddress(auth.From) || !IsValidAddress(auth.To) {
		return nil, fmt.Errorf("invalid authorization address")
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

	data, err := contractABI.Pack(
		FunctionTransferWithAuthorization,
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value,
		validAfter,
		validBefore,
		nonce,
		parts.V,
		parts.R,
		parts.S,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", FunctionTransferWithAuthorization, err)
	}
	return data, nil
}

// PackBalanceOf ABI-encodes an ERC-20 balanceOf(account) call.
func PackBalanceOf(account string) ([]byte, error) {
	_, contractABI, err := parsedABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	if !IsValidAddress(account) {
		return nil, fmt.Errorf("invalid account address: %s", account)
	}
	return contractABI.Pack(FunctionBalanceOf, common.HexToAddress(account))
}

// UnpackBalanceOf decodes the uint256 returned by balanceOf.
func UnpackBalanceOf(result []byte) (*big.Int, error) {
	_, contractABI, err := parsedABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	outputs, err := contractABI.Unpack(FunctionBalanceOf, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s output count: %d", FunctionBalanceOf, len(outputs))
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from %s", FunctionBalanceOf)
	}
	return balance, nil
}
