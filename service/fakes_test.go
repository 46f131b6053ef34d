package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
	"github.com/stretchr/testify/require"
)

func signPersonal(t testing.TB, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// fakeProvider signs with key but may claim another address, fail or block
type fakeProvider struct {
	t       testing.TB
	key     *ecdsa.PrivateKey
	claimed string

	accountsErr error
	signErr     error
	gate        chan struct{} // when set, PersonalSign waits for it to close
	entered     chan struct{} // closed when PersonalSign is first entered

	accountsCalls atomic.Int32
	signCalls     atomic.Int32

	mu         sync.Mutex
	chainID    uint64
	knownChain map[uint64]bool
	switched   []uint64
	added      []ports.ChainParams
	sent       []ports.TxRequest
	txHash     string
	enterOnce  sync.Once
}

func newFakeProvider(t testing.TB) *fakeProvider {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeProvider{
		t:          t,
		key:        key,
		claimed:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		chainID:    1,
		knownChain: map[uint64]bool{1: true},
		txHash:     common.HexToHash("0xabc").Hex(),
	}
}

func (p *fakeProvider) address() string {
	return crypto.PubkeyToAddress(p.key.PublicKey).Hex()
}

func (p *fakeProvider) Accounts(context.Context) ([]string, error) {
	p.accountsCalls.Add(1)
	if p.accountsErr != nil {
		return nil, p.accountsErr
	}
	return []string{p.claimed}, nil
}

func (p *fakeProvider) PersonalSign(ctx context.Context, message, _ string) (string, error) {
	p.signCalls.Add(1)
	if p.entered != nil {
		p.enterOnce.Do(func() { close(p.entered) })
	}
	if p.gate != nil {
		<-p.gate
	}
	if p.signErr != nil {
		return "", p.signErr
	}
	return signPersonal(p.t, p.key, message), nil
}

func (p *fakeProvider) ChainID(context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *fakeProvider) SwitchChain(_ context.Context, chainID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switched = append(p.switched, chainID)
	if !p.knownChain[chainID] {
		return core.ErrUnknownChain
	}
	p.chainID = chainID
	return nil
}

func (p *fakeProvider) AddChain(_ context.Context, params ports.ChainParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, params)
	p.knownChain[params.ChainID] = true
	p.chainID = params.ChainID
	return nil
}

func (p *fakeProvider) SendTransaction(_ context.Context, tx ports.TxRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, tx)
	return p.txHash, nil
}

// fakeBackend answers with canned values and counts calls
type fakeBackend struct {
	reply   core.AIReply
	aiErr   error
	created *core.WalletCreated
	info    *core.WalletInfoResult
	infoErr error
	err     error

	aiCalls     atomic.Int32
	createCalls atomic.Int32
	infoCalls   atomic.Int32

	mu       sync.Mutex
	requests []string
}

func (b *fakeBackend) WalletInfo(context.Context, string) (*core.WalletInfoResult, error) {
	b.infoCalls.Add(1)
	if b.infoErr != nil {
		return nil, b.infoErr
	}
	return b.info, nil
}

func (b *fakeBackend) CreateWallet(context.Context, string) (*core.WalletCreated, error) {
	b.createCalls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return b.created, nil
}

func (b *fakeBackend) AIRequest(_ context.Context, _ string, request string) (core.AIReply, error) {
	b.aiCalls.Add(1)
	b.mu.Lock()
	b.requests = append(b.requests, request)
	b.mu.Unlock()
	return b.reply, b.aiErr
}

// receiptStep is one scripted answer of fakeReceipts
type receiptStep struct {
	receipt *types.Receipt
	err     error
}

// fakeReceipts replays steps; once exhausted it keeps answering NotFound
type fakeReceipts struct {
	mu    sync.Mutex
	steps []receiptStep
	calls int
}

func (r *fakeReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.steps) == 0 {
		return nil, ethereum.NotFound
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	return step.receipt, step.err
}

func (r *fakeReceipts) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func notFound() receiptStep { return receiptStep{err: ethereum.NotFound} }

func mined(status uint64) receiptStep {
	return receiptStep{receipt: &types.Receipt{Status: status}}
}

// fakeCaller answers _NAME() per contract address
type fakeCaller struct {
	names map[string]string
}

func (c *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for addr, name := range c.names {
		if strings.EqualFold(addr, msg.To.Hex()) {
			return authorizerABI.Methods["_NAME"].Outputs.Pack(name)
		}
	}
	return nil, ethereum.NotFound
}

func connectedSession(address string) core.Session {
	return core.Session{Address: address, Status: core.StatusConnected}
}
