package cryptoenv

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// GenerateServerKeypair generates a fresh P-256 key pair for one session.
func GenerateServerKeypair() (*ecdh.PrivateKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate server keypair: %w", err)
	}
	return priv, nil
}

// DeriveChannelKey computes channel_key = SHA-256(x || sid_bytes), where x
// is the 32-byte X coordinate of the ECDH shared point. priv and pub must
// both be P-256 keys; either side may call this with its own private
// scalar and the other's public point.
func DeriveChannelKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey, sessionID uuid.UUID) ([]byte, error) {
	x, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	h := sha256.New()
	h.Write(x)
	sidBytes := sessionID // [16]byte array form
	h.Write(sidBytes[:])
	return h.Sum(nil), nil
}
