package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
)

// EIP-1193 / EIP-3085 provider error codes
const (
	codeUserRejected = 4001
	codeUnknownChain = 4902
)

// RPCProvider forwards the standard wallet request vocabulary to a
// JSON-RPC endpoint exposed by a wallet (for example a signer daemon).
type RPCProvider struct {
	client *rpc.Client
}

// DialRPCProvider connects to a wallet JSON-RPC endpoint
func DialRPCProvider(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
	}
	return NewRPCProvider(client), nil
}

// NewRPCProvider wraps an existing RPC client
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type addChainParams struct {
	ChainID        hexutil.Uint64 `json:"chainId"`
	ChainName      string         `json:"chainName"`
	NativeCurrency nativeCurrency `json:"nativeCurrency"`
	RPCURLs        []string       `json:"rpcUrls"`
}

type sendTxParams struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, classify("eth_requestAccounts", err)
	}
	return accounts, nil
}

func (p *RPCProvider) PersonalSign(ctx context.Context, message, address string) (string, error) {
	var sig string
	if err := p.client.CallContext(ctx, &sig, "personal_sign", hexutil.Encode([]byte(message)), address); err != nil {
		return "", classify("personal_sign", err)
	}
	return sig, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, classify("eth_chainId", err)
	}
	return uint64(id), nil
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	params := switchChainParams{ChainID: hexutil.Uint64(chainID)}
	if err := p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params); err != nil {
		return classify("wallet_switchEthereumChain", err)
	}
	return nil
}

func (p *RPCProvider) AddChain(ctx context.Context, chain ports.ChainParams) error {
	params := addChainParams{
		ChainID:   hexutil.Uint64(chain.ChainID),
		ChainName: chain.Name,
		NativeCurrency: nativeCurrency{
			Name:     chain.CurrencyName,
			Symbol:   chain.CurrencySymbol,
			Decimals: chain.Decimals,
		},
		RPCURLs: []string{chain.RPCURL},
	}
	if err := p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params); err != nil {
		return classify("wallet_addEthereumChain", err)
	}
	return nil
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx ports.TxRequest) (string, error) {
	params := sendTxParams{
		From:  common.HexToAddress(tx.From),
		To:    common.HexToAddress(tx.To),
		Data:  tx.Data,
		Value: (*hexutil.Big)(big.NewInt(0)),
	}

	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", params); err != nil {
		return "", classify("eth_sendTransaction", err)
	}
	return hash.Hex(), nil
}

// Close releases the underlying connection
func (p *RPCProvider) Close() {
	p.client.Close()
}

// classify maps provider error codes onto the core taxonomy
func classify(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return fmt.Errorf("%s: %w", method, core.ErrUserRejected)
		case codeUnknownChain:
			return fmt.Errorf("%s: %w", method, core.ErrUnknownChain)
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}
