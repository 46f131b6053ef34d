package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the registered claims of a gateway session token.
// The subject is the connected address and the ID is the grant ID.
type SessionClaims struct {
	jwt.RegisteredClaims
}
