package cryptoenv

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
)

func TestHandshakeDerivesIdenticalChannelKeys(t *testing.T) {
	clientPriv, err := GenerateServerKeypair()
	if err != nil {
		t.Fatalf("generate client keypair: %v", err)
	}
	serverPriv, err := GenerateServerKeypair()
	if err != nil {
		t.Fatalf("generate server keypair: %v", err)
	}

	sessionID := uuid.New()

	serverKey, err := DeriveChannelKey(serverPriv, clientPriv.PublicKey(), sessionID)
	if err != nil {
		t.Fatalf("server derive: %v", err)
	}
	clientKey, err := DeriveChannelKey(clientPriv, serverPriv.PublicKey(), sessionID)
	if err != nil {
		t.Fatalf("client derive: %v", err)
	}

	if !bytes.Equal(serverKey, clientKey) {
		t.Fatal("client and server must derive identical channel keys")
	}
	if len(serverKey) != 32 {
		t.Fatalf("expected 32-byte channel key, got %d", len(serverKey))
	}
}

func TestParsePublicKeyHexCompressedAndUncompressed(t *testing.T) {
	priv, err := GenerateServerKeypair()
	if err != nil {
		t.Fatal(err)
	}
	uncompressedHex := hex.EncodeToString(priv.PublicKey().Bytes())
	compressedHex := EncodePublicKeyHex(priv.PublicKey())

	if len(compressedHex) != 66 {
		t.Fatalf("expected 66 hex chars for compressed key, got %d", len(compressedHex))
	}
	if len(uncompressedHex) != 130 {
		t.Fatalf("expected 130 hex chars for uncompressed key, got %d", len(uncompressedHex))
	}

	fromCompressed, err := ParsePublicKeyHex(compressedHex)
	if err != nil {
		t.Fatalf("parse compressed: %v", err)
	}
	fromUncompressed, err := ParsePublicKeyHex(uncompressedHex)
	if err != nil {
		t.Fatalf("parse uncompressed: %v", err)
	}

	if !bytes.Equal(fromCompressed.Bytes(), fromUncompressed.Bytes()) {
		t.Fatal("compressed and uncompressed encodings must parse to the same point")
	}
	if !bytes.Equal(fromCompressed.Bytes(), priv.PublicKey().Bytes()) {
		t.Fatal("parsed point must equal original public key")
	}
}

func TestParsePublicKeyHexRejectsInvalid(t *testing.T) {
	if _, err := ParsePublicKeyHex("not-hex"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := ParsePublicKeyHex("00"); err == nil {
		t.Fatal("expected error for too-short input")
	}
	// A syntactically plausible but off-curve compressed point.
	bad := append([]byte{0x02}, bytes.Repeat([]byte{0xFF}, 32)...)
	if _, err := ParsePublicKeyHex(hex.EncodeToString(bad)); err == nil {
		t.Fatal("expected error for off-curve point")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, KeySize)
	nonce := [NonceSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	plaintext := []byte("hello world")

	ciphertext, err := Seal(key, nonce, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := Open(key, nonce, ciphertext)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, KeySize)
	nonce := [NonceSize]byte{}
	ciphertext, err := Seal(key, nonce, []byte("ok"))
	if err != nil {
		t.Fatal(err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01

	if _, err := Open(key, nonce, tampered); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestOpenRejectsWrongKeyIndistinguishably(t *testing.T) {
	keyA := bytes.Repeat([]byte{0x33}, KeySize)
	keyB := bytes.Repeat([]byte{0x44}, KeySize)
	nonce := [NonceSize]byte{}

	ciphertext, err := Seal(keyA, nonce, []byte("ok"))
	if err != nil {
		t.Fatal(err)
	}

	_, wrongKeyErr := Open(keyB, nonce, ciphertext)

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0x01
	_, tamperedErr := Open(keyA, nonce, tampered)

	if wrongKeyErr == nil || tamperedErr == nil {
		t.Fatal("both wrong-key and tampered-ciphertext must fail")
	}
}

func TestCommitmentIsPlainSHA256(t *testing.T) {
	got := Commitment([]byte("hello world"))
	want := sha256.Sum256([]byte("hello world"))
	if got != want {
		t.Fatalf("commitment = %x, want %x", got, want)
	}
}

func TestRequestNonceDeterministic(t *testing.T) {
	sid := uuid.New()
	n1 := RequestNonce(sid)
	n2 := RequestNonce(sid)
	if n1 != n2 {
		t.Fatal("request nonce must be deterministic for a given session id")
	}

	other := uuid.New()
	if RequestNonce(other) == n1 {
		t.Fatal("different session ids should (almost certainly) yield different nonces")
	}
}
