package service

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/defai/core"
)

// SignatureVerifier recovers personal-message signers
type SignatureVerifier struct{}

// NewSignatureVerifier creates a verifier
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// Verify recovers the address that signed message and compares it with
// claimedAddress, ignoring hex case. It returns the checksummed recovered address.
func (SignatureVerifier) Verify(message, signature, claimedAddress string) (string, error) {
	decoded, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", core.ErrSignatureMismatch)
	}
	if len(decoded) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrSignatureMismatch)
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, decoded)
	// Wallets emit V as 27/28, recovery wants 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", core.ErrSignatureMismatch)
	}

	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, claimedAddress) {
		return "", core.ErrSignatureMismatch
	}

	return recovered, nil
}
