package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

// VerifyResult is the facilitator's response to a verify call.
type VerifyResult struct {
	Valid  bool   `json:"isValid"`
	Reason string `json:"invalidReason"`
}

// SettleResult is the facilitator's response to a settle call.
type SettleResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"errorReason"`
	TxHash  string `json:"transaction"`
}

// Facilitator is the external X402 facilitator capability: verify a
// payment payload against requirements, then settle it after execution.
type Facilitator interface {
	Verify(ctx context.Context, payload *Payload) (*VerifyResult, error)
	Settle(ctx context.Context, payload *Payload) (*SettleResult, error)
}

// HTTPFacilitator calls a facilitator's /verify and /settle endpoints
// over HTTP, mirroring the pooled-client construction of
// tee/network/http.go's Client.
type HTTPFacilitator struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPFacilitator builds a facilitator client bound to baseURL
// (e.g. "https://x402.org/facilitator/"), with a bounded request timeout.
func NewHTTPFacilitator(baseURL string, timeout time.Duration) *HTTPFacilitator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFacilitator{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (f *HTTPFacilitator) Verify(ctx context.Context, payload *Payload) (*VerifyResult, error) {
	var out VerifyResult
	if err := f.post(ctx, "verify", payload, &out); err != nil {
		return nil, apierrors.Wrap(apierrors.KindPaymentRequired, "facilitator verify failed", err)
	}
	return &out, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, payload *Payload) (*SettleResult, error) {
	var out SettleResult
	if err := f.post(ctx, "settle", payload, &out); err != nil {
		return nil, apierrors.Wrap(apierrors.KindPaymentRequired, "facilitator settle failed", err)
	}
	return &out, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, op string, payload *Payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read facilitator response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("facilitator %s returned status %d", op, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode facilitator response: %w", err)
	}
	return nil
}
