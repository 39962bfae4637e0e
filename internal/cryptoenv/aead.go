package cryptoenv

import (
	"crypto/cipher"
	"fmt"

	siv "github.com/secure-io/siv-go"
)

// KeySize is the AES-256-GCM-SIV key length in bytes.
const KeySize = 32

// NewAEAD constructs the AES-256-GCM-SIV authenticated cipher used for
// every confidential payload on the wire. GCM-SIV is nonce-misuse
// resistant, unlike plain AES-GCM: accidental nonce reuse in the request
// direction (the deterministic request nonce) cannot catastrophically
// break confidentiality the way it would with ordinary GCM.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("gcm-siv key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := siv.NewGCM(key)
	if err != nil {
		return nil, fmt.Errorf("construct gcm-siv: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext under key/nonce using AES-256-GCM-SIV, returning
// ciphertext with the authentication tag appended (the standard
// cipher.AEAD.Seal convention).
func Seal(key []byte, nonce [NonceSize]byte, plaintext []byte) ([]byte, error) {
	aead, err := NewAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// Open decrypts ciphertext under key/nonce using AES-256-GCM-SIV. Any
// authentication failure is returned as a plain error; callers must wrap
// it as apierrors.KindBadCiphertext without distinguishing the failure
// reason.
func Open(key []byte, nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	aead, err := NewAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("aead open: %w", err)
	}
	return plaintext, nil
}
