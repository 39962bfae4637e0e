package attestation

import (
	"context"
	"time"
)

// quoteZeroLength is the fixed length of the zero-filled quote the stub
// provider returns, matching the TEE provider's own quote length
// (header hash || 64-byte report data) so callers see a consistent
// shape whichever provider is wired in.
const quoteZeroLength = sha256Size + 64

// StubProvider models a deployment with no hardware attestation at all:
// every GenerateQuote call succeeds with a fixed-length, all-zero quote
// rather than a real measurement, so verifiable endpoints keep working
// off-TEE for development instead of failing outright.
type StubProvider struct{}

func (StubProvider) Available() bool { return true }

func (StubProvider) GenerateQuote(ctx context.Context, reportData []byte) (*Quote, error) {
	return &Quote{
		RawQuote:  make([]byte, quoteZeroLength),
		UserData:  reportData,
		MREnclave: measurementHex(make([]byte, sha256Size)),
		MRSigner:  measurementHex(make([]byte, sha256Size)),
		Timestamp: time.Now(),
	}, nil
}
