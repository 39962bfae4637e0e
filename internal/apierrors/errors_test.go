package apierrors

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("aead: message authentication failed")
	err := Wrap(KindBadCiphertext, "decrypt wasm module", cause)

	if !errors.Is(err, err) {
		t.Fatal("expected error to be itself")
	}
	if errors.Unwrap(err) != cause {
		t.Fatal("expected Unwrap to return the cause")
	}
	if err.Error() != "decrypt wasm module: aead: message authentication failed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:      http.StatusBadRequest,
		KindUnknownSession:  http.StatusUnauthorized,
		KindBadCiphertext:   http.StatusBadRequest,
		KindPaymentRequired: http.StatusPaymentRequired,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		e := New(kind, "x")
		if got := e.HTTPStatus(); got != want {
			t.Errorf("kind %s: got status %d, want %d", kind, got, want)
		}
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("expected plain errors to map to KindInternal")
	}
}

func TestBadCiphertextIndistinguishable(t *testing.T) {
	wrongKey := Wrap(KindBadCiphertext, "decrypt argument", errors.New("cipher: message authentication failed"))
	tampered := Wrap(KindBadCiphertext, "decrypt argument", errors.New("cipher: message authentication failed"))

	if wrongKey.Kind != tampered.Kind {
		t.Fatal("wrong-key and tampered-ciphertext paths must report the same Kind")
	}
	if wrongKey.HTTPStatus() != tampered.HTTPStatus() {
		t.Fatal("wrong-key and tampered-ciphertext paths must report the same status")
	}
}
