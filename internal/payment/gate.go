package payment

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/metrics"
	"github.com/enclaverun/hypervisor/internal/pipeline"
)

// Gate enforces a four-step sequence around a guarded execution: parse
// the header, verify with the facilitator, run the pipeline, then
// best-effort settle.
type Gate struct {
	facilitator   Facilitator
	settleLimiter *rate.Limiter
	maxAttempts   int
}

// NewGate builds a Gate. maxAttempts bounds the best-effort settle retry
// at three attempts; settlePacing throttles the spacing between those
// retries.
func NewGate(facilitator Facilitator, maxAttempts int, settlePacing time.Duration) *Gate {
	if maxAttempts <= 0 || maxAttempts > 3 {
		maxAttempts = 3
	}
	if settlePacing <= 0 {
		settlePacing = 500 * time.Millisecond
	}
	return &Gate{
		facilitator:   facilitator,
		maxAttempts:   maxAttempts,
		settleLimiter: rate.NewLimiter(rate.Every(settlePacing), 1),
	}
}

// SettlementOutcome reports what happened to the best-effort settle call,
// surfaced to the caller via the X-Payment-Response header; it never
// changes whether the execution result is returned.
type SettlementOutcome struct {
	Settled bool
	Reason  string
}

// RequireAndSettle runs the verify/execute/settle sequence. exec is
// invoked only after a successful verify; its result is returned
// unconditionally once obtained, even if settlement subsequently fails.
func (g *Gate) RequireAndSettle(ctx context.Context, header string, accepts AcceptsClause, exec func() (*pipeline.Result, error)) (*pipeline.Result, *SettlementOutcome, error) {
	payload, err := ParseHeader(header)
	if err != nil {
		return nil, nil, err
	}

	verify, err := g.facilitator.Verify(ctx, payload)
	if err != nil {
		metrics.RecordPaymentVerify("error")
		return nil, nil, err
	}
	if !verify.Valid {
		metrics.RecordPaymentVerify("rejected")
		return nil, nil, apierrors.New(apierrors.KindPaymentRequired, "payment rejected: "+verify.Reason)
	}
	metrics.RecordPaymentVerify("accepted")

	result, err := exec()
	if err != nil {
		return nil, nil, err
	}

	outcome := g.bestEffortSettle(ctx, payload)
	return result, outcome, nil
}

// bestEffortSettle retries settle up to maxAttempts times, pacing calls
// with settleLimiter. A failure here never unwinds the already-produced
// execution result.
func (g *Gate) bestEffortSettle(ctx context.Context, payload *Payload) *SettlementOutcome {
	var lastReason string
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := g.settleLimiter.Wait(ctx); err != nil {
				return &SettlementOutcome{Settled: false, Reason: "settle retry cancelled: " + err.Error()}
			}
		}

		settle, err := g.facilitator.Settle(ctx, payload)
		if err != nil {
			lastReason = err.Error()
			continue
		}
		if settle.Success {
			metrics.RecordPaymentSettle("success")
			return &SettlementOutcome{Settled: true}
		}
		lastReason = settle.Reason
	}
	metrics.RecordPaymentSettle("failed")
	return &SettlementOutcome{Settled: false, Reason: lastReason}
}
