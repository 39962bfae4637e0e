package payment

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/pipeline"
)

type fakeFacilitator struct {
	verifyResult *VerifyResult
	verifyErr    error
	settleFn     func(call int) (*SettleResult, error)
	settleCalls  int
}

func (f *fakeFacilitator) Verify(ctx context.Context, payload *Payload) (*VerifyResult, error) {
	return f.verifyResult, f.verifyErr
}

func (f *fakeFacilitator) Settle(ctx context.Context, payload *Payload) (*SettleResult, error) {
	f.settleCalls++
	return f.settleFn(f.settleCalls)
}

func validHeader(t *testing.T) string {
	t.Helper()
	raw := `{"paymentPayload":{"x":1},"paymentRequirements":{"y":2}}`
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(raw))
}

func TestParseHeaderMissing(t *testing.T) {
	_, err := ParseHeader("")
	if err == nil {
		t.Fatal("expected error for missing header")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindPaymentRequired {
		t.Fatalf("expected KindPaymentRequired, got %v", err)
	}
}

func TestParseHeaderMalformed(t *testing.T) {
	_, err := ParseHeader("not-base64!!!")
	if err == nil {
		t.Fatal("expected error for malformed header")
	}
}

func TestParseHeaderValid(t *testing.T) {
	payload, err := ParseHeader(validHeader(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(payload.PaymentPayload) == 0 {
		t.Fatal("expected non-empty payment payload")
	}
}

func TestRequireAndSettleVerifyRejected(t *testing.T) {
	fac := &fakeFacilitator{verifyResult: &VerifyResult{Valid: false, Reason: "insufficient funds"}}
	gate := NewGate(fac, 3, time.Millisecond)

	called := false
	_, _, err := gate.RequireAndSettle(context.Background(), validHeader(t), AcceptsClause{}, func() (*pipeline.Result, error) {
		called = true
		return &pipeline.Result{}, nil
	})
	if err == nil {
		t.Fatal("expected error when verify rejects payment")
	}
	if called {
		t.Fatal("exec must not run when verify rejects payment")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindPaymentRequired {
		t.Fatalf("expected KindPaymentRequired, got %v", err)
	}
}

func TestRequireAndSettleHappyPath(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResult: &VerifyResult{Valid: true},
		settleFn: func(call int) (*SettleResult, error) {
			return &SettleResult{Success: true, TxHash: "0xabc"}, nil
		},
	}
	gate := NewGate(fac, 3, time.Millisecond)

	result, outcome, err := gate.RequireAndSettle(context.Background(), validHeader(t), AcceptsClause{}, func() (*pipeline.Result, error) {
		return &pipeline.Result{EncryptedResult: []byte("ok")}, nil
	})
	if err != nil {
		t.Fatalf("require and settle: %v", err)
	}
	if string(result.EncryptedResult) != "ok" {
		t.Fatal("unexpected result")
	}
	if !outcome.Settled {
		t.Fatal("expected settlement to succeed")
	}
}

func TestRequireAndSettleExecutionErrorSkipsSettle(t *testing.T) {
	fac := &fakeFacilitator{verifyResult: &VerifyResult{Valid: true}}
	gate := NewGate(fac, 3, time.Millisecond)

	_, _, err := gate.RequireAndSettle(context.Background(), validHeader(t), AcceptsClause{}, func() (*pipeline.Result, error) {
		return nil, apierrors.New(apierrors.KindGuestTrap, "boom")
	})
	if err == nil {
		t.Fatal("expected execution error to propagate")
	}
	if fac.settleCalls != 0 {
		t.Fatal("settle must not be attempted when execution fails")
	}
}

func TestRequireAndSettleResultAuthoritativeDespiteSettleFailure(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResult: &VerifyResult{Valid: true},
		settleFn: func(call int) (*SettleResult, error) {
			return &SettleResult{Success: false, Reason: "facilitator down"}, nil
		},
	}
	gate := NewGate(fac, 2, time.Millisecond)

	result, outcome, err := gate.RequireAndSettle(context.Background(), validHeader(t), AcceptsClause{}, func() (*pipeline.Result, error) {
		return &pipeline.Result{EncryptedResult: []byte("still here")}, nil
	})
	if err != nil {
		t.Fatalf("expected execution result to be authoritative, got err: %v", err)
	}
	if string(result.EncryptedResult) != "still here" {
		t.Fatal("expected execution result preserved despite settle failure")
	}
	if outcome.Settled {
		t.Fatal("expected settlement to be reported as failed")
	}
	if fac.settleCalls != 2 {
		t.Fatalf("expected retries up to maxAttempts=2, got %d calls", fac.settleCalls)
	}
}

func TestDefaultAcceptsShape(t *testing.T) {
	a := DefaultAccepts("base-sepolia", "0xabc", "1", "/x402_execute/test/wasm")
	if a.Scheme != "exact" || a.Asset != "USDC" {
		t.Fatalf("unexpected accepts clause: %+v", a)
	}
}
