package policyexec

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

func TestRunEchoesConsoleLog(t *testing.T) {
	e := New()
	out, err := e.Run(context.Background(), `console.log("hello", argv[0])`, []string{"world"}, Limits{WallClockTimeout: time.Second})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(string(out), "hello world") {
		t.Fatalf("expected output to contain 'hello world', got %q", out)
	}
}

func TestRunSyntaxErrorIsInvalidGuest(t *testing.T) {
	e := New()
	_, err := e.Run(context.Background(), `this is not valid javascript {{{`, nil, Limits{WallClockTimeout: time.Second})
	if err == nil {
		t.Fatal("expected error for invalid script")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindInvalidGuest {
		t.Fatalf("expected KindInvalidGuest, got %v", err)
	}
}

func TestRunRuntimeExceptionIsGuestTrap(t *testing.T) {
	e := New()
	_, err := e.Run(context.Background(), `throw new Error("boom")`, nil, Limits{WallClockTimeout: time.Second})
	if err == nil {
		t.Fatal("expected error for thrown exception")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindGuestTrap {
		t.Fatalf("expected KindGuestTrap, got %v", err)
	}
}

func TestRunTimeoutIsResourceExceeded(t *testing.T) {
	e := New()
	_, err := e.Run(context.Background(), `while (true) {}`, nil, Limits{WallClockTimeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error for infinite loop")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindResourceExceededTime {
		t.Fatalf("expected KindResourceExceededTime, got %v", err)
	}
}

func TestRunFuelBudgetIsResourceExceeded(t *testing.T) {
	e := New()
	_, err := e.Run(context.Background(), `while (true) {}`, nil, Limits{FuelTimeout: 50 * time.Millisecond, WallClockTimeout: 10 * time.Second})
	if err == nil {
		t.Fatal("expected fuel budget error for infinite loop")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindResourceExceededFuel {
		t.Fatalf("expected KindResourceExceededFuel, got %v", err)
	}
}

func TestRunWallClockExceededWhenShorterThanFuel(t *testing.T) {
	e := New()
	_, err := e.Run(context.Background(), `while (true) {}`, nil, Limits{FuelTimeout: 10 * time.Second, WallClockTimeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected wall-clock error for infinite loop")
	}
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindResourceExceededTime {
		t.Fatalf("expected KindResourceExceededTime, got %v", err)
	}
}

func TestRunNoArgvDoesNotPanic(t *testing.T) {
	e := New()
	_, err := e.Run(context.Background(), `console.log("no args")`, nil, Limits{WallClockTimeout: time.Second})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
