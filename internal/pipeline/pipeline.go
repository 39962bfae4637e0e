// Package pipeline orchestrates the decrypt -> validate -> execute ->
// commit -> encrypt -> (optional quote) sequence behind one contract
// shared by the WASM and policy-script variants.
package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/attestation"
	"github.com/enclaverun/hypervisor/internal/envelope"
	"github.com/enclaverun/hypervisor/internal/metrics"
	"github.com/enclaverun/hypervisor/internal/policyexec"
	"github.com/enclaverun/hypervisor/internal/session"
	"github.com/enclaverun/hypervisor/internal/wasmexec"
)

// Request is what an HTTP handler decodes into before invoking the
// pipeline: ciphertext for the module/script plus each argument.
type Request struct {
	SessionID         uuid.UUID
	CiphertextPayload []byte // encrypted module (WASM) or script (policy) bytes
	CiphertextArgv    [][]byte
	Verifiable        bool
}

// Result is the response shape returned to the caller once execution and
// attestation (if requested) have both completed.
type Result struct {
	SessionID        uuid.UUID
	EncryptedResult  []byte
	ResultNonce      [12]byte
	ResultCommitment [32]byte
	ResultQuote      *attestation.Quote
}

// wasmMagic is the four-byte WebAssembly module header.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// wasmCoreLayer is the version/layer field (bytes 4-7) a core WASM module
// carries. The WASM Component Model reuses the same four-byte magic but
// sets this field to 0x0d000100 (version 0x0d, layer 1) to mark a
// component binary. This executor runs core modules only — see
// DESIGN.md's Open Questions for why — so a component binary is rejected
// here instead of failing deep inside wazero.
var wasmCoreLayer = []byte{0x01, 0x00, 0x00, 0x00}

// Pipeline ties both guest executors, their resource limits, and an
// attestation provider together; the session record is passed in on
// each call.
type Pipeline struct {
	wasm       *wasmexec.Executor
	policy     *policyexec.Executor
	attestor   attestation.Provider
	wasmLimits wasmexec.Limits
	polLimits  policyexec.Limits
}

// New builds a Pipeline.
func New(wasm *wasmexec.Executor, policy *policyexec.Executor, attestor attestation.Provider, wasmLimits wasmexec.Limits, polLimits policyexec.Limits) *Pipeline {
	return &Pipeline{wasm: wasm, policy: policy, attestor: attestor, wasmLimits: wasmLimits, polLimits: polLimits}
}

// ExecuteWasm runs the decrypt/execute/commit/encrypt sequence for a WASM
// guest.
func (p *Pipeline) ExecuteWasm(ctx context.Context, rec *session.Record, req Request) (*Result, error) {
	done := metrics.GuestExecutionStarted("wasm")
	result, err := p.execute(ctx, rec, req, func(plainModule string, argv []string) ([]byte, error) {
		return p.wasm.Run(ctx, []byte(plainModule), argv, p.wasmLimits)
	}, validateWasmModule)
	done(outcomeLabel(err))
	return result, err
}

// ExecutePolicy runs the decrypt/execute/commit/encrypt sequence for a
// policy script guest.
func (p *Pipeline) ExecutePolicy(ctx context.Context, rec *session.Record, req Request) (*Result, error) {
	done := metrics.GuestExecutionStarted("policy")
	result, err := p.execute(ctx, rec, req, func(plainScript string, argv []string) ([]byte, error) {
		return p.policy.Run(ctx, plainScript, argv, p.polLimits)
	}, validateUTF8)
	done(outcomeLabel(err))
	return result, err
}

// outcomeLabel renders an execution's result as a metrics label without
// ever including guest-controlled text, only the closed apierrors.Kind
// set (or "ok").
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apierrors.KindOf(err))
}

// runner is the shape both executors expose once the module/script has
// already been decrypted into a string and its argv decrypted into
// plain strings.
type runner func(payload string, argv []string) ([]byte, error)

// validator checks the decrypted payload bytes per step 3 before they
// are handed to an executor.
type validator func(payload []byte) error

func (p *Pipeline) execute(ctx context.Context, rec *session.Record, req Request, run runner, validate validator) (*Result, error) {
	env := envelope.New(req.SessionID, rec.ChannelKey)

	// Steps 1-2: derive request nonce (inside OpenRequest) and decrypt.
	payload, err := env.OpenRequest(req.CiphertextPayload)
	if err != nil {
		return nil, err
	}

	argv := make([]string, len(req.CiphertextArgv))
	for i, ct := range req.CiphertextArgv {
		plain, err := env.OpenRequest(ct)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(plain) {
			return nil, apierrors.New(apierrors.KindBadRequest, "argument is not valid UTF-8")
		}
		argv[i] = string(plain)
	}

	// Step 3: validate.
	if err := validate(payload); err != nil {
		return nil, err
	}

	// Step 4: execute.
	stdout, err := run(string(payload), argv)
	if err != nil {
		zero(payload)
		return nil, err
	}

	// Steps 5-6: commit, then encrypt under a fresh response nonce.
	commitment := env.Commit(stdout)
	ciphertext, nonce, err := env.SealResponse(stdout)
	if err != nil {
		zero(stdout)
		zero(payload)
		return nil, err
	}

	result := &Result{
		SessionID:        req.SessionID,
		EncryptedResult:  ciphertext,
		ResultNonce:      nonce,
		ResultCommitment: commitment,
	}

	// Step 7: optional attestation quote over pad64(commitment).
	if req.Verifiable {
		report := attestation.BuildReportData(commitment[:])
		quote, err := p.attestor.GenerateQuote(ctx, report[:])
		if err != nil {
			zero(stdout)
			zero(payload)
			return nil, err
		}
		result.ResultQuote = quote
	}

	zero(stdout)
	zero(payload)
	return result, nil
}

func validateWasmModule(payload []byte) error {
	if len(payload) < 8 || string(payload[:4]) != string(wasmMagic) {
		return apierrors.New(apierrors.KindInvalidGuest, "decrypted payload is not a valid WASM module")
	}
	if string(payload[4:8]) == string(wasmCoreLayer) {
		return nil
	}
	// Bytes 6-7 are the Component Model's layer field: 0x0001 marks a
	// component binary sharing the core module's magic number.
	if payload[6] == 0x01 && payload[7] == 0x00 {
		return apierrors.New(apierrors.KindInvalidGuest, "decrypted payload is a WASM component binary; this executor accepts core modules only")
	}
	return apierrors.New(apierrors.KindInvalidGuest, "decrypted payload has an unsupported WASM version")
}

func validateUTF8(payload []byte) error {
	if !utf8.Valid(payload) {
		return apierrors.New(apierrors.KindInvalidGuest, "decrypted script is not valid UTF-8")
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
