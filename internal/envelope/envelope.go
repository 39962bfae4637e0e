// Package envelope wraps a session's channel key with the wire
// protocol's fixed framing rules: deterministic request nonce, fresh
// response nonce, and SHA-256 result commitment. It composes
// internal/cryptoenv rather than duplicating its primitives.
package envelope

import (
	"github.com/google/uuid"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/cryptoenv"
)

// Envelope binds a channel key to one session id, providing the
// direction-specific nonce rules the wire protocol requires.
type Envelope struct {
	sessionID uuid.UUID
	key       []byte
}

// New builds an Envelope for a session's channel key. key must be 32
// bytes (cryptoenv.KeySize); callers get this from session.Record.
func New(sessionID uuid.UUID, key []byte) *Envelope {
	return &Envelope{sessionID: sessionID, key: key}
}

// OpenRequest decrypts a client->server ciphertext using the
// deterministic request nonce. Any failure — wrong key or tampered
// ciphertext — is folded into KindBadCiphertext so the two cases remain
// indistinguishable to the caller.
func (e *Envelope) OpenRequest(ciphertext []byte) ([]byte, error) {
	nonce := cryptoenv.RequestNonce(e.sessionID)
	plaintext, err := cryptoenv.Open(e.key, nonce, ciphertext)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindBadCiphertext, "decrypt request payload", err)
	}
	return plaintext, nil
}

// SealResponse encrypts a server->client plaintext under a freshly drawn
// nonce. The nonce is returned alongside the ciphertext since, unlike
// the request direction, it is not derivable from the session id and
// must be transmitted to the client.
func (e *Envelope) SealResponse(plaintext []byte) (ciphertext []byte, nonce [12]byte, err error) {
	nonce, err = cryptoenv.FreshResponseNonce()
	if err != nil {
		return nil, nonce, apierrors.Wrap(apierrors.KindInternal, "generate response nonce", err)
	}
	ciphertext, err = cryptoenv.Seal(e.key, nonce, plaintext)
	if err != nil {
		return nil, nonce, apierrors.Wrap(apierrors.KindInternal, "encrypt response payload", err)
	}
	return ciphertext, nonce, nil
}

// Commit computes the SHA-256 commitment over a plaintext result, to be
// returned alongside the ciphertext so the client can verify the server
// encrypted exactly what it claims.
func (e *Envelope) Commit(plaintext []byte) [32]byte {
	return cryptoenv.Commitment(plaintext)
}
