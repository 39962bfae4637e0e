package attestation

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

// MeasurementSource abstracts the underlying enclave's identity
// measurements. A real deployment backs this with the platform's
// actual quoting driver; tests and local runs use a fixed simulated
// source.
type MeasurementSource interface {
	Measurement() ([]byte, error)
	SignerMeasurement() ([]byte, error)
}

// SimulatedMeasurementSource derives stable pseudo-measurements from a
// configured enclave id, for deployments with no real hardware quoting
// path present.
type SimulatedMeasurementSource struct {
	EnclaveID string
}

func (s SimulatedMeasurementSource) Measurement() ([]byte, error) {
	sum := sha256.Sum256([]byte("mrenclave:" + s.EnclaveID))
	return sum[:], nil
}

func (s SimulatedMeasurementSource) SignerMeasurement() ([]byte, error) {
	sum := sha256.Sum256([]byte("mrsigner:" + s.EnclaveID))
	return sum[:], nil
}

// TEEProvider generates quotes from a MeasurementSource. It is always
// "available"; callers that need to model a missing attestation
// capability should use StubProvider instead.
type TEEProvider struct {
	EnclaveID string
	Source    MeasurementSource
}

// NewTEEProvider constructs a TEEProvider. If source is nil, a simulated
// measurement source keyed on enclaveID is used.
func NewTEEProvider(enclaveID string, source MeasurementSource) *TEEProvider {
	if source == nil {
		source = SimulatedMeasurementSource{EnclaveID: enclaveID}
	}
	return &TEEProvider{EnclaveID: enclaveID, Source: source}
}

func (p *TEEProvider) Available() bool { return true }

// GenerateQuote builds a quote binding reportData (already pad64-shaped
// by callers via BuildReportData) to the enclave's measurements. A
// Source failure (the actual "driver absent or refused" case) is
// surfaced as KindAttestationUnavailable.
func (p *TEEProvider) GenerateQuote(ctx context.Context, reportData []byte) (*Quote, error) {
	mrEnclave, err := p.Source.Measurement()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindAttestationUnavailable, "get enclave measurement", err)
	}
	mrSigner, err := p.Source.SignerMeasurement()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindAttestationUnavailable, "get signer measurement", err)
	}

	timestamp := time.Now()

	h := sha256.New()
	h.Write([]byte("HYPERVISOR_QUOTE_V1"))
	h.Write(mrEnclave)
	h.Write(mrSigner)
	h.Write(reportData)
	h.Write([]byte(timestamp.Format(time.RFC3339Nano)))
	header := h.Sum(nil)

	// The raw quote carries the signing header followed by the verbatim
	// report data, so a verifier can recover the report body at a fixed
	// trailing offset (the last 64 bytes) without needing the in-process
	// Quote struct — the same way a real DCAP/SGX quote fixes the report
	// body at a known offset within the quote blob.
	raw := make([]byte, 0, len(header)+len(reportData))
	raw = append(raw, header...)
	raw = append(raw, reportData...)

	return &Quote{
		RawQuote:  raw,
		UserData:  reportData,
		MREnclave: measurementHex(mrEnclave),
		MRSigner:  measurementHex(mrSigner),
		Timestamp: timestamp,
	}, nil
}
