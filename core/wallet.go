package core

// AuthorizerSet holds the policy contracts created during wallet provisioning.
// Either key may be nil when provisioning has not run or did not finish.
type AuthorizerSet struct {
	ApproveAuthorizer *string
	SiloAuthorizer    *string
}

// Complete reports whether both authorizers are known
func (a AuthorizerSet) Complete() bool {
	return a.ApproveAuthorizer != nil && a.SiloAuthorizer != nil
}

// Clone returns a copy that shares no pointers with a
func (a AuthorizerSet) Clone() AuthorizerSet {
	var out AuthorizerSet
	if a.ApproveAuthorizer != nil {
		v := *a.ApproveAuthorizer
		out.ApproveAuthorizer = &v
	}
	if a.SiloAuthorizer != nil {
		v := *a.SiloAuthorizer
		out.SiloAuthorizer = &v
	}
	return out
}

// WalletCreated is the provisioning result of POST /api/wallet/create
type WalletCreated struct {
	SafeAddress              string `json:"safe_address"`
	CoboAddress              string `json:"cobo_address"`
	ApproveAuthorizerAddress string `json:"approve_authorizer_address"`
	SiloAuthorizerAddress    string `json:"silo_authorizer_address"`
}

// Authorizers extracts the authorizer set, leaving empty addresses unset
func (w WalletCreated) Authorizers() AuthorizerSet {
	var set AuthorizerSet
	if w.ApproveAuthorizerAddress != "" {
		v := w.ApproveAuthorizerAddress
		set.ApproveAuthorizer = &v
	}
	if w.SiloAuthorizerAddress != "" {
		v := w.SiloAuthorizerAddress
		set.SiloAuthorizer = &v
	}
	return set
}

// WalletInfo describes the custodial wallet bound to a user address
type WalletInfo struct {
	AgentAddress string `json:"agent_address"`
	AgentKey     string `json:"agent_key"`
	CoboAddress  string `json:"cobo_address"`
	SafeAddress  string `json:"safe_address"`
}

// WalletInfoResult is the envelope of GET /api/wallet/info
type WalletInfoResult struct {
	Status string     `json:"status"`
	Data   WalletInfo `json:"data"`
}
