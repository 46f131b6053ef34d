package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const authorizerABIJSON = `[
	{"type":"function","name":"_NAME","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"setMaxAmount","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var authorizerABI = mustParseABI(authorizerABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid authorizer ABI: %v", err))
	}
	return parsed
}

const etherDecimals = 18

// AuthorizerNames holds the on-chain names of the provisioned authorizers
type AuthorizerNames struct {
	Approve string `json:"approve"`
	Silo    string `json:"silo"`
}

// AuthorizerService reads and configures the policy contracts created with the wallet
type AuthorizerService struct {
	wallets  *WalletService
	caller   ports.ContractCaller
	provider ports.WalletProvider
	poller   *TransactionStatusPoller
	chain    ports.ChainParams
}

// NewAuthorizerService creates an authorizer service that sends through
// provider on chain
func NewAuthorizerService(
	wallets *WalletService,
	caller ports.ContractCaller,
	provider ports.WalletProvider,
	poller *TransactionStatusPoller,
	chain ports.ChainParams,
) *AuthorizerService {
	return &AuthorizerService{
		wallets:  wallets,
		caller:   caller,
		provider: provider,
		poller:   poller,
		chain:    chain,
	}
}

// Names calls _NAME() on both authorizers
func (s *AuthorizerService) Names(ctx context.Context) (AuthorizerNames, error) {
	set := s.wallets.Authorizers()
	if !set.Complete() {
		return AuthorizerNames{}, core.ErrAuthorizersMissing
	}

	var names AuthorizerNames
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		names.Approve, err = s.name(gctx, *set.ApproveAuthorizer)
		return err
	})
	g.Go(func() (err error) {
		names.Silo, err = s.name(gctx, *set.SiloAuthorizer)
		return err
	})
	if err := g.Wait(); err != nil {
		return AuthorizerNames{}, err
	}

	return names, nil
}

func (s *AuthorizerService) name(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid authorizer address %q", address)
	}
	data, err := authorizerABI.Pack("_NAME")
	if err != nil {
		return "", fmt.Errorf("failed to pack _NAME call: %w", err)
	}

	to := common.HexToAddress(address)
	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call _NAME on %s: %w", address, err)
	}

	values, err := authorizerABI.Unpack("_NAME", out)
	if err != nil {
		return "", fmt.Errorf("failed to decode _NAME result from %s: %w", address, err)
	}
	name, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected _NAME result type %T", values[0])
	}
	return name, nil
}

// SetMaxAmount sets the silo authorizer limit to amount ether, sent from the
// session address, and waits for the transaction to settle. An outcome without
// receipt is returned together with core.ErrTransactionUnresolved.
func (s *AuthorizerService) SetMaxAmount(ctx context.Context, session core.Session, amount string) (core.TransactionOutcome, error) {
	if !session.Connected() {
		return core.TransactionOutcome{}, core.ErrNotAuthenticated
	}

	set := s.wallets.Authorizers()
	if set.SiloAuthorizer == nil {
		return core.TransactionOutcome{}, core.ErrAuthorizersMissing
	}

	wei, err := ParseEther(amount)
	if err != nil {
		return core.TransactionOutcome{}, err
	}

	data, err := authorizerABI.Pack("setMaxAmount", wei)
	if err != nil {
		return core.TransactionOutcome{}, fmt.Errorf("failed to pack setMaxAmount: %w", err)
	}

	if err := s.ensureChain(ctx); err != nil {
		return core.TransactionOutcome{}, err
	}

	txHash, err := s.provider.SendTransaction(ctx, ports.TxRequest{
		From: session.Address,
		To:   *set.SiloAuthorizer,
		Data: data,
	})
	if err != nil {
		return core.TransactionOutcome{}, providerFailure("send setMaxAmount", err)
	}
	slog.Info("setMaxAmount sent", "tx_hash", txHash, "amount", amount, "authorizer", *set.SiloAuthorizer)

	outcome := s.poller.Poll(ctx, txHash)
	if outcome.Status == core.TxUnknown {
		return outcome, core.ErrTransactionUnresolved
	}

	return outcome, nil
}

// ensureChain switches the provider to the configured chain, registering it
// first when the provider does not know it.
func (s *AuthorizerService) ensureChain(ctx context.Context) error {
	if current, err := s.provider.ChainID(ctx); err == nil && current == s.chain.ChainID {
		return nil
	}

	err := s.provider.SwitchChain(ctx, s.chain.ChainID)
	if errors.Is(err, core.ErrUnknownChain) {
		err = s.provider.AddChain(ctx, s.chain)
	}
	if err != nil {
		return providerFailure("switch chain", err)
	}
	return nil
}

// ParseEther converts a positive decimal ether amount to wei
func ParseEther(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidAmount, amount)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive", core.ErrInvalidAmount)
	}

	wei := d.Shift(etherDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d decimals", core.ErrInvalidAmount, etherDecimals)
	}

	return wei.BigInt(), nil
}
