// Package handshake implements session establishment: given a client's
// P-256 public key, generate a server keypair, derive the channel key,
// mint a session id, and optionally attest to the binding between the
// session and the running enclave.
package handshake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enclaverun/hypervisor/internal/apierrors"
	"github.com/enclaverun/hypervisor/internal/attestation"
	"github.com/enclaverun/hypervisor/internal/cryptoenv"
	"github.com/enclaverun/hypervisor/internal/metrics"
	"github.com/enclaverun/hypervisor/internal/session"
)

// Output is what a handshake call returns to the HTTP layer: the new
// session id, the server's public key (for the client to derive its own
// copy of the channel key), and an optional attestation quote.
type Output struct {
	SessionID       uuid.UUID
	ServerPublicKey string // compressed hex
	Quote           *attestation.Quote
}

// Service creates sessions, binding a session store to an attestation
// provider.
type Service struct {
	store    *session.Store
	attestor attestation.Provider
}

// New builds a handshake Service bound to a session store and an
// attestation provider. provider may be attestation.StubProvider{} when
// no hardware attestation capability is configured.
func New(store *session.Store, provider attestation.Provider) *Service {
	return &Service{store: store, attestor: provider}
}

// CreateSession parses the client's public key, generates a server
// keypair, derives the channel key, mints a session id, stores the
// record, and — when verifiable is requested — produces a quote binding
// the session to the enclave.
func (s *Service) CreateSession(ctx context.Context, clientPubKeyHex string, verifiable bool) (*Output, error) {
	clientPub, err := cryptoenv.ParsePublicKeyHex(clientPubKeyHex)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindBadRequest, "invalid client public key", err)
	}

	serverPriv, err := cryptoenv.GenerateServerKeypair()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "generate server keypair", err)
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "generate session id", err)
	}

	channelKey, err := cryptoenv.DeriveChannelKey(serverPriv, clientPub, sessionID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "derive channel key", err)
	}

	rec := &session.Record{
		SessionID:       sessionID,
		ChannelKey:      channelKey,
		ServerPublicKey: serverPriv.PublicKey(),
		ClientPublicKey: clientPub,
		CreatedAt:       time.Now(),
	}
	s.store.Insert(rec)
	metrics.RecordSessionCreated(verifiable)
	metrics.SetActiveSessions(s.store.Len())

	out := &Output{
		SessionID:       sessionID,
		ServerPublicKey: cryptoenv.EncodePublicKeyHex(serverPriv.PublicKey()),
	}

	if verifiable {
		quote, err := s.quoteForSession(ctx, rec)
		if err != nil {
			return nil, err
		}
		out.Quote = quote
	}

	return out, nil
}

// quoteForSession requests a quote over pad64(server_session_pubkey). A
// verifier reconstructs the same report data from the response's
// session_pubkey field and checks it against the quote's report body.
func (s *Service) quoteForSession(ctx context.Context, rec *session.Record) (*attestation.Quote, error) {
	report := attestation.BuildReportData(cryptoenv.CompressPublicKey(rec.ServerPublicKey))

	quote, err := s.attestor.GenerateQuote(ctx, report[:])
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// Lookup resolves an existing session by id, translating a miss into the
// gateway's UnknownSession error kind.
func (s *Service) Lookup(id uuid.UUID) (*session.Record, error) {
	rec, ok := s.store.Lookup(id)
	if !ok {
		return nil, apierrors.New(apierrors.KindUnknownSession, fmt.Sprintf("unknown session %s", id))
	}
	return rec, nil
}
