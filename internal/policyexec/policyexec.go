// Package policyexec runs untrusted JavaScript policy scripts under the
// same contract as internal/wasmexec: a fresh goja.Runtime per call,
// vm.Interrupt for wall-clock timeout, and a captured console.log buffer
// standing in for stdout.
//
// goja gives the script no filesystem, network, or process access by
// construction, so the language sandbox is real. That is not a
// substitute for OS-level isolation (process sandboxing, seccomp, a
// microVM) — this package makes no such claim.
package policyexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

// Limits bounds one script invocation. Unlike internal/wasmexec, goja has
// no notion of linear-memory pages, so MemoryMaxBytes is accepted for
// contract symmetry and ignored. FuelTimeout is this package's proxy for
// a CPU-bound budget: goja exposes no instruction or step counter, so a
// second, tighter interrupt deadline scoped to the script's own
// execution stands in for one, distinct from WallClockTimeout's wider
// per-request envelope.
type Limits struct {
	MemoryMaxBytes   int64
	WallClockTimeout time.Duration
	FuelTimeout      time.Duration
}

// Executor runs JavaScript policy scripts.
type Executor struct{}

// New constructs a policy Executor.
func New() *Executor { return &Executor{} }

// Run compiles and executes script, passing argv as a global `argv`
// array, and returns everything written via console.log/print as
// newline-joined stdout bytes. This mirrors wasmexec.Executor.Run's
// signature so internal/pipeline can treat both executors identically.
func (e *Executor) Run(ctx context.Context, script string, argv []string, limits Limits) ([]byte, error) {
	if limits.WallClockTimeout <= 0 {
		limits.WallClockTimeout = 30 * time.Second
	}
	if limits.FuelTimeout <= 0 {
		limits.FuelTimeout = 10 * time.Second
	}

	vm := goja.New()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-time.After(limits.FuelTimeout):
			vm.Interrupt("guest exceeded fuel budget")
		case <-time.After(limits.WallClockTimeout):
			vm.Interrupt("guest exceeded wall-clock timeout")
		case <-ctx.Done():
			vm.Interrupt("request context cancelled")
		case <-done:
		}
	}()

	argvValues := make([]interface{}, len(argv))
	for i, a := range argv {
		argvValues[i] = a
	}
	if err := vm.Set("argv", argvValues); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "bind argv", err)
	}

	var lines []string
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		lines = append(lines, strings.Join(parts, " "))
		return goja.Undefined()
	}

	console := vm.NewObject()
	console.Set("log", logFn)
	vm.Set("console", console)
	vm.Set("print", logFn)

	prog, err := goja.Compile("policy.js", script, false)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidGuest, "script compilation failed", err)
	}

	_, err = vm.RunProgram(prog)
	if err != nil {
		return []byte(strings.Join(lines, "\n")), classifyScriptError(err)
	}

	return []byte(strings.Join(lines, "\n")), nil
}

func classifyScriptError(err error) error {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		reason := fmt.Sprint(interrupted.Value())
		switch {
		case strings.Contains(reason, "fuel"):
			return apierrors.Wrap(apierrors.KindResourceExceededFuel, "guest exceeded fuel budget", err)
		case strings.Contains(reason, "timeout"):
			return apierrors.Wrap(apierrors.KindResourceExceededTime, "guest exceeded wall-clock timeout", err)
		}
		return apierrors.Wrap(apierrors.KindGuestTrap, "guest execution interrupted", err)
	}
	if exception, ok := err.(*goja.Exception); ok {
		return apierrors.Wrap(apierrors.KindGuestTrap, exception.Error(), err)
	}
	return apierrors.Wrap(apierrors.KindInvalidGuest, "script compilation failed", err)
}
