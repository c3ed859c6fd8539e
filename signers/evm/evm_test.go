package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402evm "github.com/x402-foundation/x402exact/mechanisms/evm"
	x402types "github.com/x402-foundation/x402exact/types"
)

// Well-known development key (anvil account #0).
const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	token      = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

type fakeBackend struct {
	chainID  *big.Int
	balance  *big.Int
	callOut  []byte
	callErr  error
	sendErr  error
	lastCall ethereum.CallMsg
	sent     []*types.Transaction
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastCall = msg
	return f.callOut, f.callErr
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90000, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func TestClientSigner(t *testing.T) {
	signer, err := NewClientSignerFromPrivateKey(devKey)
	require.NoError(t, err)
	assert.Equal(t, devAddress, signer.Address())

	auth := x402types.Authorization{
		From:        signer.Address(),
		To:          "0x9876543210987654321098765432109876543210",
		Value:       "1000000",
		ValidAfter:  "0",
		ValidBefore: "9999999999",
		Nonce:       "0x0000000000000000000000000000000000000000000000000000000000000001",
	}
	domain := x402evm.NewDomain("USDC", "2", x402evm.ChainIDBaseSepolia, token)
	message, err := x402evm.AuthorizationMessage(auth)
	require.NoError(t, err)

	signature, err := signer.SignTypedData(context.Background(), domain, x402evm.TransferWithAuthorizationTypes(), x402evm.PrimaryTypeTransferWithAuthorization, message)
	require.NoError(t, err)
	require.Len(t, signature, 65)
	assert.Contains(t, []byte{27, 28}, signature[64])

	recovered, err := x402evm.RecoverAuthorizationSigner(auth, domain, signature)
	require.NoError(t, err)
	assert.Equal(t, devAddress, recovered)
}

func TestClientSigner_InvalidKey(t *testing.T) {
	_, err := NewClientSignerFromPrivateKey("0xnothex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid private key")
}

func TestClientSigner_CanceledContext(t *testing.T) {
	signer, err := NewClientSignerFromPrivateKey(devKey)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = signer.SignTypedData(ctx, x402evm.TypedDataDomain{}, nil, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRPCProvider(t *testing.T) {
	backend := &fakeBackend{balance: big.NewInt(42), callOut: []byte{0x01}}
	provider := NewRPCProvider(backend)

	balance, err := provider.GetBalance(context.Background(), devAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())

	out, err := provider.Call(context.Background(), token, []byte{0xaa})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, out)
	assert.Equal(t, common.HexToAddress(token), *backend.lastCall.To)
	assert.Equal(t, []byte{0xaa}, backend.lastCall.Data)

	backend.callErr = errors.New("execution reverted")
	_, err = provider.Call(context.Background(), token, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")

	_, err = provider.GetBalance(context.Background(), "bogus")
	assert.Error(t, err)
	provider.Close()
}

func TestWallet_SendTransaction(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(84532)}
	wallet, err := NewWallet(devKey, backend)
	require.NoError(t, err)
	assert.Equal(t, devAddress, wallet.Address())

	data := []byte{0xe3, 0xee, 0x16, 0x0e}
	hash, err := wallet.SendTransaction(context.Background(), token, data)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, data, tx.Data())
	assert.Equal(t, common.HexToAddress(token), *tx.To())
	assert.Equal(t, uint64(90000), tx.Gas())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(84532)), tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddress), sender)

	// second transaction picks up the next account nonce
	_, err = wallet.SendTransaction(context.Background(), token, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), backend.sent[1].Nonce())
}

func TestWallet_SendFailure(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(84532), sendErr: errors.New("nonce too low")}
	wallet, err := NewWallet(devKey, backend)
	require.NoError(t, err)

	_, err = wallet.SendTransaction(context.Background(), token, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestNewWallet_Errors(t *testing.T) {
	_, err := NewWallet(devKey, nil)
	assert.Error(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet, err := NewWallet(common.Bytes2Hex(crypto.FromECDSA(key)), &fakeBackend{})
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), wallet.Address())
}
