package ports

import "github.com/layer-3/defai/core"

// Tokenizer converts access grants to bearer tokens and back
type Tokenizer interface {
	GrantToToken(grant *core.AccessGrant) (string, error)
	TokenToGrant(token string) (*core.AccessGrant, error)
}
