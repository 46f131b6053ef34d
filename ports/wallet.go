package ports

import "context"

// ChainParams describes a chain for wallet_addEthereumChain
type ChainParams struct {
	ChainID        uint64
	Name           string
	RPCURL         string
	CurrencyName   string
	CurrencySymbol string
	Decimals       uint8
}

// TxRequest is an unsigned transaction handed to the wallet for signing
type TxRequest struct {
	From string
	To   string
	Data []byte
}

// WalletProvider speaks the standard wallet request vocabulary.
// Implementations report a declined prompt as core.ErrUserRejected and an
// unrecognised chain as core.ErrUnknownChain.
type WalletProvider interface {
	Accounts(ctx context.Context) ([]string, error)
	PersonalSign(ctx context.Context, message, address string) (string, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params ChainParams) error
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)
}
