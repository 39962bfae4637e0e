package envelope

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/cryptoenv"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	sid := uuid.New()
	key := bytes.Repeat([]byte{0x55}, cryptoenv.KeySize)

	serverSide := New(sid, key)
	clientSide := New(sid, key)

	nonce := cryptoenv.RequestNonce(sid)
	requestCiphertext, err := cryptoenv.Seal(key, nonce, []byte("run this module"))
	if err != nil {
		t.Fatal(err)
	}

	plaintext, err := serverSide.OpenRequest(requestCiphertext)
	if err != nil {
		t.Fatalf("open request: %v", err)
	}
	if string(plaintext) != "run this module" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}

	responseCiphertext, _, err := serverSide.SealResponse([]byte("result"))
	if err != nil {
		t.Fatalf("seal response: %v", err)
	}

	_ = clientSide // symmetry check only; client would decrypt with its own AEAD open
	if bytes.Equal(responseCiphertext, requestCiphertext) {
		t.Fatal("response ciphertext must not equal request ciphertext")
	}
}

func TestOpenRequestTamperedIsBadCiphertext(t *testing.T) {
	sid := uuid.New()
	key := bytes.Repeat([]byte{0x66}, cryptoenv.KeySize)
	env := New(sid, key)

	nonce := cryptoenv.RequestNonce(sid)
	ciphertext, err := cryptoenv.Seal(key, nonce, []byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	ciphertext[0] ^= 0x01

	_, err = env.OpenRequest(ciphertext)
	if err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindBadCiphertext {
		t.Fatalf("expected KindBadCiphertext, got %v", err)
	}
}

func TestOpenRequestWrongKeyIsBadCiphertext(t *testing.T) {
	sid := uuid.New()
	keyA := bytes.Repeat([]byte{0x77}, cryptoenv.KeySize)
	keyB := bytes.Repeat([]byte{0x88}, cryptoenv.KeySize)

	nonce := cryptoenv.RequestNonce(sid)
	ciphertext, err := cryptoenv.Seal(keyA, nonce, []byte("data"))
	if err != nil {
		t.Fatal(err)
	}

	env := New(sid, keyB)
	_, err = env.OpenRequest(ciphertext)
	if err == nil {
		t.Fatal("expected error for wrong key")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindBadCiphertext {
		t.Fatalf("expected KindBadCiphertext, got %v", err)
	}
}

func TestCommitMatchesCryptoenv(t *testing.T) {
	env := New(uuid.New(), bytes.Repeat([]byte{0x99}, cryptoenv.KeySize))
	got := env.Commit([]byte("result bytes"))
	want := cryptoenv.Commitment([]byte("result bytes"))
	if got != want {
		t.Fatalf("commit mismatch: got %x want %x", got, want)
	}
}
