package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/cryptoenv"
	"github.com/enclaverun/hypervisor/internal/handshake"
	"github.com/enclaverun/hypervisor/internal/logging"
	"github.com/enclaverun/hypervisor/internal/metrics"
	"github.com/enclaverun/hypervisor/internal/payment"
	"github.com/enclaverun/hypervisor/internal/pipeline"
	"github.com/enclaverun/hypervisor/internal/session"
)

// handler bundles every HTTP endpoint the gateway exposes.
type handler struct {
	handshake *handshake.Service
	store     *session.Store
	pipeline  *pipeline.Pipeline
	sem       *pipeline.Semaphore
	gate      *payment.Gate
	log       *logging.Logger

	execAccepts   payment.AcceptsClause
	verifyAccepts payment.AcceptsClause
	policyAccepts payment.AcceptsClause
}

// Config bundles everything NewHandler needs to wire up routes.
type Config struct {
	Handshake     *handshake.Service
	Store         *session.Store
	Pipeline      *pipeline.Pipeline
	Semaphore     *pipeline.Semaphore
	Gate          *payment.Gate
	Log           *logging.Logger
	ExecAccepts   payment.AcceptsClause
	VerifyAccepts payment.AcceptsClause
	PolicyAccepts payment.AcceptsClause
}

// NewHandler returns an http.Handler exposing the gateway's endpoints.
func NewHandler(cfg Config) http.Handler {
	h := &handler{
		handshake:     cfg.Handshake,
		store:         cfg.Store,
		pipeline:      cfg.Pipeline,
		sem:           cfg.Semaphore,
		gate:          cfg.Gate,
		log:           cfg.Log,
		execAccepts:   cfg.ExecAccepts,
		verifyAccepts: cfg.VerifyAccepts,
		policyAccepts: cfg.PolicyAccepts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", h.ping)
	mux.HandleFunc("/encrypt/create_keypair", h.createKeypair(false))
	mux.HandleFunc("/verifiable/encrypt/create_keypair", h.createKeypair(true))
	mux.HandleFunc("/test/execute/wasm", h.executeWasmFree(false))
	mux.HandleFunc("/x402_execute/test/wasm", h.executeWasmPaid(false))
	mux.HandleFunc("/x402_execute/verifiable/wasm", h.executeWasmPaid(true))
	mux.HandleFunc("/test/policy/unsafe/python", h.executePolicyFree(false))
	mux.HandleFunc("/test/policy/unsafe/python/attest", h.executePolicyFree(true))
	mux.HandleFunc("/x402_policy/unsafe/python", h.executePolicyPaid)

	// Demo-only agent discovery/deploy stubs, kept as fixed 501 responses
	// rather than inventing agent-marketplace business logic.
	mux.HandleFunc("/agent/deploy", h.agentStub)
	mux.HandleFunc("/search", h.agentStub)

	mux.Handle("/metrics", metrics.Handler())

	return metrics.InstrumentHandler(mux)
}

func (h *handler) agentStub(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"error": "agent discovery/deploy is a demo stub, out of scope for this gateway",
	})
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Write([]byte("pong"))
}

type handshakeRequest struct {
	PubKey string `json:"pubkey"`
}

type handshakeResponse struct {
	SessionPubKey string `json:"session_pubkey"`
	SessionID     string `json:"session_id"`
	Quote         string `json:"quote,omitempty"`
}

func (h *handler) createKeypair(verifiable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req handshakeRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			writeAPIError(w, apierrors.Wrap(apierrors.KindBadRequest, "invalid request body", err))
			return
		}

		out, err := h.handshake.CreateSession(r.Context(), req.PubKey, verifiable)
		if err != nil {
			writeAPIError(w, err)
			return
		}

		resp := handshakeResponse{
			SessionPubKey: out.ServerPublicKey,
			SessionID:     out.SessionID.String(),
		}
		if out.Quote != nil {
			resp.Quote = hex.EncodeToString(out.Quote.RawQuote)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type executeRequest struct {
	EncryptedWasm      string   `json:"encrypted_wasm,omitempty"`
	EncryptedPython    string   `json:"encrypted_python,omitempty"`
	EncryptedArguments []string `json:"encrypted_arguments"`
	PublicKey          string   `json:"public_key"`
	SessionID          string   `json:"session_id,omitempty"`
}

type executeResponse struct {
	SessionID        string `json:"session_id"`
	EncryptedResult  string `json:"encrypted_result"`
	ResultNonce      string `json:"result_nonce"`
	ResultCommitment string `json:"result_commitment"`
	ResultQuote      string `json:"result_quote,omitempty"`
}

// resolveSession prefers an explicit session_id; otherwise it falls back
// to the most recent session for public_key, which is inherently
// ambiguous under concurrent handshakes against the same key.
func (h *handler) resolveSession(req executeRequest) (*session.Record, uuid.UUID, error) {
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return nil, uuid.UUID{}, apierrors.Wrap(apierrors.KindBadRequest, "invalid session_id", err)
		}
		rec, err := h.handshake.Lookup(id)
		if err != nil {
			return nil, uuid.UUID{}, err
		}
		return rec, id, nil
	}

	pub, err := cryptoenv.ParsePublicKeyHex(req.PublicKey)
	if err != nil {
		return nil, uuid.UUID{}, apierrors.Wrap(apierrors.KindBadRequest, "invalid public_key", err)
	}

	h.log.Warn("resolving session via latest-by-pubkey fallback; prefer explicit session_id")
	rec, ok := h.store.LookupLatestByPublicKey(pub)
	if !ok {
		return nil, uuid.UUID{}, apierrors.New(apierrors.KindUnknownSession, "no session found for public_key")
	}
	return rec, rec.SessionID, nil
}

func decodeArgv(hexArgs []string) ([][]byte, error) {
	out := make([][]byte, len(hexArgs))
	for i, a := range hexArgs {
		raw, err := hex.DecodeString(a)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.KindBadRequest, "invalid hex-encoded argument", err)
		}
		out[i] = raw
	}
	return out, nil
}

func buildExecuteResponse(result *pipeline.Result) executeResponse {
	resp := executeResponse{
		SessionID:        result.SessionID.String(),
		EncryptedResult:  hex.EncodeToString(result.EncryptedResult),
		ResultNonce:      hex.EncodeToString(result.ResultNonce[:]),
		ResultCommitment: hex.EncodeToString(result.ResultCommitment[:]),
	}
	if result.ResultQuote != nil {
		resp.ResultQuote = hex.EncodeToString(result.ResultQuote.RawQuote)
	}
	return resp
}
