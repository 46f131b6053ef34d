package ports

import (
	"context"

	"github.com/layer-3/defai/core"
)

// Backend is the custodial-wallet and AI-agent HTTP API
type Backend interface {
	WalletInfo(ctx context.Context, address string) (*core.WalletInfoResult, error)
	CreateWallet(ctx context.Context, address string) (*core.WalletCreated, error)
	AIRequest(ctx context.Context, address, request string) (core.AIReply, error)
}
