// Package attestation generates hardware attestation quotes binding a
// report payload to the running enclave. Two Provider implementations
// are offered: tee (backed by a real or simulated measurement source)
// and stub (a fixed-length, all-zero quote for deployments with no
// attestation capability at all, per spec.md §4.2).
package attestation

import (
	"context"
	"encoding/hex"
	"time"
)

// sha256Size is the length, in bytes, of the TEE provider's signing
// header; the stub provider's zero-filled quote matches that same
// overall length so both variants produce a consistently shaped blob.
const sha256Size = 32

// Quote is the attestation quote returned for a verifiable request.
type Quote struct {
	RawQuote  []byte
	UserData  []byte
	MREnclave string
	MRSigner  string
	Timestamp time.Time
}

// Provider is the capability a handshake or execution path needs to
// produce a quote over a report payload. Implementations must not block
// longer than the caller's context allows.
type Provider interface {
	GenerateQuote(ctx context.Context, reportData []byte) (*Quote, error)
	Available() bool
}

// pad64 right-pads data with zero bytes to the fixed 64-byte width
// hardware quoting interfaces expect. Callers are responsible for
// ensuring data is already the exact bytes to be committed to (a public
// key, a commitment hash) — pad64 itself never hashes.
func pad64(data []byte) [64]byte {
	var out [64]byte
	copy(out[:], data)
	return out
}

// BuildReportData right-pads payload to the 64-byte report-data block a
// quote commits to: pad64(server_session_pubkey) for the handshake,
// pad64(result_commitment) for execution. It must not hash payload — a
// verifier reconstructs the expected report data by pad64-ing the exact
// same field and compares byte-for-byte against the quote's report body.
func BuildReportData(payload []byte) [64]byte {
	return pad64(payload)
}

// measurementHex is a small shared helper used by both provider variants
// to render raw measurement bytes as hex.
func measurementHex(b []byte) string {
	return hex.EncodeToString(b)
}
