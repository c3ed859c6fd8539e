package evm

import (
	"math/big"
)

const (
	// Scheme identifier
	SchemeExact = "exact"

	// Default token decimals for USDC
	DefaultDecimals = 6

	// Contract function names
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionBalanceOf                 = "balanceOf"

	// EIP-712 primary type signed by the payer
	PrimaryTypeTransferWithAuthorization = "TransferWithAuthorization"

	// Length of an ECDSA signature in r || s || v form
	SignatureLength = 65

	// Length of an EIP-3009 nonce in bytes
	NonceLength = 32
)

var (
	// Network chain IDs used by the bundled examples and tests
	ChainIDBase          = big.NewInt(8453)
	ChainIDBaseSepolia   = big.NewInt(84532)
	ChainIDAvalancheFuji = big.NewInt(43113)

	// TransferWithAuthorizationVRSABI is the EIP-3009 entry point that takes a split signature.
	TransferWithAuthorizationVRSABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)
