package core

import "errors"

var (
	// Authentication
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrSignatureMismatch   = errors.New("signature does not match claimed address")
	ErrProviderError       = errors.New("wallet provider error")
	ErrAlreadyInProgress   = errors.New("connect already in progress")
	ErrConnectAborted      = errors.New("connect aborted by disconnect")
	ErrUnknownChain        = errors.New("chain not known to wallet provider")

	// Orchestration
	ErrNetwork               = errors.New("network error")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrTransactionUnresolved = errors.New("transaction unresolved")
	ErrAuthorizersMissing    = errors.New("authorizers not provisioned")
	ErrInvalidAmount         = errors.New("invalid amount")

	// Gateway tokens
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")
)
