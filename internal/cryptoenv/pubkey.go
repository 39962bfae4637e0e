// Package cryptoenv implements the gateway's crypto primitives: P-256 ECDH
// channel-key derivation, AES-256-GCM-SIV authenticated encryption,
// SHA-256 commitments, and nonce derivation.
package cryptoenv

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"math/big"
)

// ParsePublicKeyHex parses a hex-encoded P-256 public key, accepting both
// the 33-byte compressed form (66 hex chars) and the 65-byte uncompressed
// form (130 hex chars) — the server must accept either on the wire.
func ParsePublicKeyHex(s string) (*ecdh.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}
	return ParsePublicKeyBytes(raw)
}

// ParsePublicKeyBytes parses a raw P-256 public key in SEC1 compressed or
// uncompressed form.
func ParsePublicKeyBytes(raw []byte) (*ecdh.PublicKey, error) {
	switch {
	case len(raw) == 65 && raw[0] == 0x04:
		return ecdh.P256().NewPublicKey(raw)
	case len(raw) == 33 && (raw[0] == 0x02 || raw[0] == 0x03):
		uncompressed, err := decompressPoint(raw)
		if err != nil {
			return nil, err
		}
		return ecdh.P256().NewPublicKey(uncompressed)
	default:
		return nil, fmt.Errorf("invalid public key length/prefix: %d bytes", len(raw))
	}
}

// decompressPoint expands a SEC1-compressed P-256 point into its 65-byte
// uncompressed SEC1 encoding (0x04 || X || Y). Go's crypto/ecdh package
// only accepts the uncompressed form, so this affine-point decompression
// is required ahead of it; it is plain elliptic-curve arithmetic, not a
// cryptographic primitive in its own right, so stdlib math/big and
// crypto/elliptic suffice (see DESIGN.md).
func decompressPoint(compressed []byte) ([]byte, error) {
	curve := elliptic.P256()
	params := curve.Params()

	x := new(big.Int).SetBytes(compressed[1:])
	if x.Cmp(params.P) >= 0 {
		return nil, fmt.Errorf("invalid public key: x out of range")
	}

	// y^2 = x^3 - 3x + b (mod p)
	x3 := new(big.Int).Exp(x, big.NewInt(3), params.P)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	y2 := new(big.Int).Sub(x3, threeX)
	y2.Add(y2, params.B)
	y2.Mod(y2, params.P)

	// p ≡ 3 (mod 4) for P-256, so sqrt(y2) = y2^((p+1)/4) mod p.
	exp := new(big.Int).Add(params.P, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))
	y := new(big.Int).Exp(y2, exp, params.P)

	// Verify the candidate root is actually a square root.
	check := new(big.Int).Exp(y, big.NewInt(2), params.P)
	if check.Cmp(y2) != 0 {
		return nil, fmt.Errorf("invalid public key: not a point on the curve")
	}

	wantOdd := compressed[0] == 0x03
	if y.Bit(0) == 1 != wantOdd {
		y.Sub(params.P, y)
	}

	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("invalid public key: not a point on the curve")
	}

	out := make([]byte, 65)
	out[0] = 0x04
	xBytes := x.Bytes()
	yBytes := y.Bytes()
	copy(out[1+32-len(xBytes):33], xBytes)
	copy(out[33+32-len(yBytes):65], yBytes)
	return out, nil
}

// EncodePublicKeyHex returns the compressed hex encoding of a P-256
// public key, matching the server's own session_pubkey wire format.
func EncodePublicKeyHex(pub *ecdh.PublicKey) string {
	return hex.EncodeToString(CompressPublicKey(pub))
}

// CompressPublicKey returns the 33-byte SEC1 compressed encoding of a
// P-256 public key — the exact bytes bound into the handshake's
// attestation report data via pad64.
func CompressPublicKey(pub *ecdh.PublicKey) []byte {
	return compressPoint(pub.Bytes())
}

// compressPoint compresses an uncompressed SEC1 point (0x04 || X || Y).
func compressPoint(uncompressed []byte) []byte {
	if len(uncompressed) != 65 || uncompressed[0] != 0x04 {
		return uncompressed
	}
	x := uncompressed[1:33]
	y := uncompressed[33:65]

	out := make([]byte, 33)
	if y[len(y)-1]&1 == 1 {
		out[0] = 0x03
	} else {
		out[0] = 0x02
	}
	copy(out[1:], x)
	return out
}
