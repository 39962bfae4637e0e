package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/payment"
	"github.com/enclaverun/hypervisor/internal/pipeline"
)

func decodeExecuteRequest(r *http.Request) (executeRequest, error) {
	var req executeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		return req, apierrors.Wrap(apierrors.KindBadRequest, "invalid request body", err)
	}
	return req, nil
}

func hexDecodeField(s string) ([]byte, error) {
	raw, err := decodeArgv([]string{s})
	if err != nil {
		return nil, err
	}
	return raw[0], nil
}

// executeWasmFree serves the free (non-paid) WASM execution endpoint.
// verifiable is always false here; the verifiable WASM path is only
// reachable through the paid endpoint.
func (h *handler) executeWasmFree(verifiable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		req, err := decodeExecuteRequest(r)
		if err != nil {
			writeAPIError(w, err)
			return
		}

		result, err := h.executeWasm(r, req, verifiable)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, buildExecuteResponse(result))
	}
}

// executeWasmPaid serves the X402-gated WASM execution endpoints.
// verifiable selects whether the execution also requests an attestation
// quote and which accepts clause is advertised on a 402.
func (h *handler) executeWasmPaid(verifiable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		req, err := decodeExecuteRequest(r)
		if err != nil {
			writeAPIError(w, err)
			return
		}

		accepts := h.execAccepts
		if verifiable {
			accepts = h.verifyAccepts
		}

		result, outcome, err := h.gate.RequireAndSettle(r.Context(), r.Header.Get("X-Payment"), accepts, func() (*pipeline.Result, error) {
			return h.executeWasm(r, req, verifiable)
		})
		if err != nil {
			writePaymentOrAPIError(w, err, accepts)
			return
		}

		setSettlementHeader(w, outcome)
		writeJSON(w, http.StatusOK, buildExecuteResponse(result))
	}
}

func (h *handler) executeWasm(r *http.Request, req executeRequest, verifiable bool) (*pipeline.Result, error) {
	rec, sessionID, err := h.resolveSession(req)
	if err != nil {
		return nil, err
	}

	ciphertext, err := hexDecodeField(req.EncryptedWasm)
	if err != nil {
		return nil, err
	}
	argv, err := decodeArgv(req.EncryptedArguments)
	if err != nil {
		return nil, err
	}

	release, err := h.sem.Acquire(r.Context())
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "admission wait cancelled", err)
	}
	defer release()

	return h.pipeline.ExecuteWasm(r.Context(), rec, pipeline.Request{
		SessionID:         sessionID,
		CiphertextPayload: ciphertext,
		CiphertextArgv:    argv,
		Verifiable:        verifiable,
	})
}

// executePolicyFree serves the free policy-script execution endpoints,
// one attested and one not.
func (h *handler) executePolicyFree(verifiable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		req, err := decodeExecuteRequest(r)
		if err != nil {
			writeAPIError(w, err)
			return
		}

		result, err := h.executePolicy(r, req, verifiable)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, buildExecuteResponse(result))
	}
}

// executePolicyPaid serves the X402-gated policy execution endpoint.
func (h *handler) executePolicyPaid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeExecuteRequest(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	result, outcome, err := h.gate.RequireAndSettle(r.Context(), r.Header.Get("X-Payment"), h.policyAccepts, func() (*pipeline.Result, error) {
		return h.executePolicy(r, req, false)
	})
	if err != nil {
		writePaymentOrAPIError(w, err, h.policyAccepts)
		return
	}

	setSettlementHeader(w, outcome)
	writeJSON(w, http.StatusOK, buildExecuteResponse(result))
}

func (h *handler) executePolicy(r *http.Request, req executeRequest, verifiable bool) (*pipeline.Result, error) {
	rec, sessionID, err := h.resolveSession(req)
	if err != nil {
		return nil, err
	}

	ciphertext, err := hexDecodeField(req.EncryptedPython)
	if err != nil {
		return nil, err
	}
	argv, err := decodeArgv(req.EncryptedArguments)
	if err != nil {
		return nil, err
	}

	release, err := h.sem.Acquire(r.Context())
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "admission wait cancelled", err)
	}
	defer release()

	return h.pipeline.ExecutePolicy(r.Context(), rec, pipeline.Request{
		SessionID:         sessionID,
		CiphertextPayload: ciphertext,
		CiphertextArgv:    argv,
		Verifiable:        verifiable,
	})
}

// writePaymentOrAPIError renders a PaymentRequired error as a 402 with
// the accepts clause, or falls through to the generic error renderer for
// anything else the gate or pipeline surfaced.
func writePaymentOrAPIError(w http.ResponseWriter, err error, accepts payment.AcceptsClause) {
	apiErr, ok := apierrors.As(err)
	if ok && apiErr.Kind == apierrors.KindPaymentRequired {
		writePaymentRequired(w, apiErr.Message, accepts)
		return
	}
	writeAPIError(w, err)
}

// setSettlementHeader encodes the best-effort settlement outcome into
// X-Payment-Response as base64url JSON. A settle failure never withholds
// the already-produced execution result (outcome is nil only when
// RequireAndSettle itself failed before reaching settlement, in which
// case the caller never calls this).
func setSettlementHeader(w http.ResponseWriter, outcome *payment.SettlementOutcome) {
	if outcome == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"success": outcome.Settled,
		"reason":  outcome.Reason,
	})
	if err != nil {
		return
	}
	w.Header().Set("X-Payment-Response", base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(body))
}
