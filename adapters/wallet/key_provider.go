package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
)

// KeyProvider is a wallet provider backed by a single local secp256k1 key.
// It behaves like an injected browser wallet that approves every prompt
// unless rejections are switched on.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend ports.TxBackend

	mu      sync.Mutex
	chainID uint64
	known   map[uint64]bool
	reject  bool
}

// NewKeyProvider creates a provider for key, initially on chainID.
// backend may be nil, in which case SendTransaction fails.
func NewKeyProvider(key *ecdsa.PrivateKey, chainID uint64, backend ports.TxBackend) *KeyProvider {
	return &KeyProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
		chainID: chainID,
		known:   map[uint64]bool{chainID: true},
	}
}

// NewKeyProviderFromHex parses a hex private key, with or without 0x
func NewKeyProviderFromHex(hexKey string, chainID uint64, backend ports.TxBackend) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeyProvider(key, chainID, backend), nil
}

// Address returns the checksummed account address
func (p *KeyProvider) Address() string {
	return p.address.Hex()
}

// RejectRequests makes every subsequent prompt fail with core.ErrUserRejected
func (p *KeyProvider) RejectRequests(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject = reject
}

func (p *KeyProvider) rejecting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reject
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]string, error) {
	return []string{p.address.Hex()}, nil
}

// PersonalSign produces an EIP-191 signature with V in the 27/28 convention
func (p *KeyProvider) PersonalSign(ctx context.Context, message, address string) (string, error) {
	if !strings.EqualFold(address, p.address.Hex()) {
		return "", fmt.Errorf("unknown account %s", address)
	}
	if p.rejecting() {
		return "", core.ErrUserRejected
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

func (p *KeyProvider) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *KeyProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reject {
		return core.ErrUserRejected
	}
	if !p.known[chainID] {
		return fmt.Errorf("chain %d: %w", chainID, core.ErrUnknownChain)
	}
	p.chainID = chainID
	return nil
}

// AddChain registers the chain and switches to it
func (p *KeyProvider) AddChain(ctx context.Context, params ports.ChainParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reject {
		return core.ErrUserRejected
	}
	p.known[params.ChainID] = true
	p.chainID = params.ChainID
	return nil
}

// SendTransaction signs a legacy transaction and broadcasts it through the backend
func (p *KeyProvider) SendTransaction(ctx context.Context, req ports.TxRequest) (string, error) {
	if p.backend == nil {
		return "", fmt.Errorf("no transaction backend configured")
	}
	if p.rejecting() {
		return "", core.ErrUserRejected
	}
	if req.From != "" && !strings.EqualFold(req.From, p.address.Hex()) {
		return "", fmt.Errorf("unknown account %s", req.From)
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("invalid recipient %q", req.To)
	}

	to := common.HexToAddress(req.To)
	chainID, _ := p.ChainID(ctx)

	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return "", err
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}
	gas, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: &to, Data: req.Data})
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return "", err
	}

	return signed.Hash().Hex(), nil
}
