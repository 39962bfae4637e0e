package cryptoenv

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// NonceSize is the AES-GCM-SIV nonce length in bytes.
const NonceSize = 12

// RequestNonce deterministically derives the client→server nonce from the
// session id: SHA-256(sid_bytes)[0..12]. The same nonce is reused for
// every ciphertext within one request (module/script + each argument);
// AES-256-GCM-SIV's nonce-misuse resistance makes this safe.
func RequestNonce(sessionID uuid.UUID) [NonceSize]byte {
	sidBytes := sessionID
	sum := sha256.Sum256(sidBytes[:])

	var nonce [NonceSize]byte
	copy(nonce[:], sum[:NonceSize])
	return nonce
}

// FreshResponseNonce draws a new cryptographically secure nonce for one
// server→client response.
func FreshResponseNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("generate response nonce: %w", err)
	}
	return nonce, nil
}

// Commitment computes SHA-256 over the exact plaintext bytes the client
// will recover after decryption.
func Commitment(plaintext []byte) [32]byte {
	return sha256.Sum256(plaintext)
}
