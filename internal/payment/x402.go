// Package payment implements an X402 payment gate: parse the X-Payment
// request header, verify it against an external facilitator, run the
// guarded execution, and settle. The facilitator HTTP client uses a
// pooled *http.Client with an explicit timeout.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

// AcceptsClause describes what a paid endpoint requires.
type AcceptsClause struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	PayTo             string `json:"payTo"`
	Asset             string `json:"asset"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	ResourcePath      string `json:"resource"`
	MimeType          string `json:"mimeType"`
	Description       string `json:"description"`
}

// Payload is the decoded X-Payment header contents: an X402 payment
// payload alongside the requirements it claims to satisfy.
type Payload struct {
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// ParseHeader decodes a base64url-encoded JSON X-Payment header value.
// A missing or malformed header is reported as KindPaymentRequired so the
// handler can respond 402 with the accepts clause.
func ParseHeader(header string) (*Payload, error) {
	if header == "" {
		return nil, apierrors.New(apierrors.KindPaymentRequired, "missing X-Payment header")
	}

	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(header)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(header)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.KindPaymentRequired, "malformed X-Payment header", err)
		}
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apierrors.Wrap(apierrors.KindPaymentRequired, "malformed X-Payment payload", err)
	}
	return &p, nil
}

// DefaultAccepts returns the demo accepts clause: scheme "exact", USDC
// on a Base network, amount configurable.
func DefaultAccepts(network, payTo, maxAmount, resourcePath string) AcceptsClause {
	return AcceptsClause{
		Scheme:            "exact",
		Network:           network,
		PayTo:             payTo,
		Asset:             "USDC",
		MaxAmountRequired: maxAmount,
		ResourcePath:      resourcePath,
		MimeType:          "application/json",
		Description:       fmt.Sprintf("access to %s", resourcePath),
	}
}
