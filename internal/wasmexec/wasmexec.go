// Package wasmexec runs untrusted WebAssembly modules in a fresh,
// resource-bounded sandbox per invocation, built on
// github.com/tetratelabs/wazero, an idiomatic pure-Go WASM runtime.
package wasmexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

// Limits bounds one guest invocation. FuelTimeout is this package's
// proxy for a CPU-bound budget: wazero's stable API exposes no
// instruction or step counter, so a second, tighter deadline scoped to
// instantiating the compiled module and running its _start call (as
// opposed to WallClockTimeout, which also covers runtime setup and
// compilation) stands in for one.
type Limits struct {
	MemoryMaxBytes   int64
	WallClockTimeout time.Duration
	FuelTimeout      time.Duration
}

// Executor runs compiled WASM modules. It holds no per-call state; every
// Run call builds and tears down its own runtime, store, and instance so
// guest invocations never share linear memory or tables.
type Executor struct{}

// New constructs a WASM Executor.
func New() *Executor { return &Executor{} }

// Run instantiates moduleBytes as a WASI preview1 module, invokes its
// _start entry point with argv, and returns captured stdout. The module
// gets no filesystem preopens, no network, and no environment variables —
// only stdout/stderr capture; stderr is captured separately and is not
// part of the returned result. A module that exports no _start function
// is rejected as KindInvalidGuest.
func (e *Executor) Run(ctx context.Context, moduleBytes []byte, argv []string, limits Limits) ([]byte, error) {
	if limits.WallClockTimeout <= 0 {
		limits.WallClockTimeout = 30 * time.Second
	}
	if limits.FuelTimeout <= 0 {
		limits.FuelTimeout = 10 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.WallClockTimeout)
	defer cancel()

	runtimeConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if limits.MemoryMaxBytes > 0 {
		pages := uint32(limits.MemoryMaxBytes / wazeroPageSize)
		if pages == 0 {
			pages = 1
		}
		runtimeConfig = runtimeConfig.WithMemoryLimitPages(pages)
	}

	runtime := wazero.NewRuntimeWithConfig(runCtx, runtimeConfig)
	defer runtime.Close(runCtx)

	if _, err := wasi_snapshot_preview1.Instantiate(runCtx, runtime); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "instantiate wasi", err)
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithArgs(argv...).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")

	compiled, err := runtime.CompileModule(runCtx, moduleBytes)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidGuest, "compile guest module", err)
	}
	if _, ok := compiled.ExportedFunctions()["_start"]; !ok {
		return nil, apierrors.New(apierrors.KindInvalidGuest, "guest module exports no _start function")
	}

	fuelCtx, fuelCancel := context.WithTimeout(runCtx, limits.FuelTimeout)
	defer fuelCancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := runtime.InstantiateModule(fuelCtx, compiled, moduleConfig)
		resultCh <- err
	}()

	select {
	case err := <-resultCh:
		if classified := classifyRunError(err); classified != nil {
			return nil, classified
		}
		return trimTrailingNewline(stdout.Bytes()), nil
	case <-fuelCtx.Done():
		if runCtx.Err() != nil {
			return nil, apierrors.New(apierrors.KindResourceExceededTime, "guest exceeded wall-clock timeout")
		}
		return nil, apierrors.New(apierrors.KindResourceExceededFuel, "guest exceeded CPU execution budget")
	}
}

// trimTrailingNewline strips a single trailing line terminator. Partial
// stdout on failure is discarded entirely by the caller, so this only
// ever runs on a successful exit.
func trimTrailingNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
		if n := len(b); n > 0 && b[n-1] == '\r' {
			b = b[:n-1]
		}
	}
	return b
}

// wazeroPageSize is the WASM linear memory page size (64 KiB).
const wazeroPageSize = 64 * 1024

func classifyRunError(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return apierrors.Wrap(apierrors.KindGuestTrap, fmt.Sprintf("guest exited with code %d", exitErr.ExitCode()), err)
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "out of memory", "memory limit"):
		return apierrors.Wrap(apierrors.KindResourceExceededMemory, "guest exceeded memory limit", err)
	case containsAny(msg, "context deadline exceeded"):
		return apierrors.Wrap(apierrors.KindResourceExceededTime, "guest exceeded wall-clock timeout", err)
	default:
		return apierrors.Wrap(apierrors.KindGuestTrap, "guest module trapped", err)
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains([]byte(haystack), []byte(n)) {
			return true
		}
	}
	return false
}
