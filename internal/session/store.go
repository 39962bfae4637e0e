// Package session implements the process-wide session-id -> SessionRecord
// mapping, using a mutex-guarded map with LRU bounding
// (github.com/hashicorp/golang-lru/v2) so long-lived deployments can't
// grow the table without bound.
package session

import (
	"crypto/ecdh"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
)

// Record is a SessionRecord: the channel key, creation time, and the
// public keys involved in the handshake that created it. The channel key
// is never serialized or logged; callers must copy it into a request
// context rather than retain a pointer into a Record past the lifetime
// of one request.
type Record struct {
	SessionID       uuid.UUID
	ChannelKey      []byte // 32 bytes; never logged
	ServerPublicKey *ecdh.PublicKey
	ClientPublicKey *ecdh.PublicKey
	CreatedAt       time.Time
}

// Store is the process-wide session table.
type Store struct {
	mu  sync.RWMutex
	lru *lru.Cache[uuid.UUID, *Record]

	// byPubKey indexes the most recently created session id for a given
	// client public key, to support the fallback lookup path when a
	// request omits an explicit session id. Kept as a byte-string key
	// (the SEC1 uncompressed encoding returned by ecdh.PublicKey.Bytes)
	// since ecdh.PublicKey is not comparable.
	byPubKey map[string]uuid.UUID
}

// New creates a Store bounded to maxSessions entries. Eviction is LRU:
// the session least recently inserted or looked up is evicted first once
// the bound is reached.
func New(maxSessions int) (*Store, error) {
	if maxSessions <= 0 {
		maxSessions = 10_000
	}

	s := &Store{byPubKey: make(map[string]uuid.UUID)}

	cache, err := lru.NewWithEvict(maxSessions, func(_ uuid.UUID, rec *Record) {
		zero(rec.ChannelKey)
	})
	if err != nil {
		return nil, err
	}
	s.lru = cache
	return s, nil
}

// Insert atomically stores a new record, indexed both by session id and
// by client public key (for the latest-session fallback lookup).
func (s *Store) Insert(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Add(rec.SessionID, rec)
	s.byPubKey[string(rec.ClientPublicKey.Bytes())] = rec.SessionID
}

// Lookup returns the record for a session id. ok is false if the session
// is unknown or was evicted — callers must treat this as
// apierrors.KindUnknownSession.
func (s *Store) Lookup(id uuid.UUID) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Get(id)
}

// LookupLatestByPublicKey resolves the most recently created session for
// a client public key. This fallback path is inherently ambiguous if a
// key is reused across concurrent sessions; callers should prefer an
// explicit session id (see internal/httpapi) and log when this fallback
// is used.
func (s *Store) LookupLatestByPublicKey(pub *ecdh.PublicKey) (*Record, bool) {
	s.mu.RLock()
	id, ok := s.byPubKey[string(pub.Bytes())]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.Lookup(id)
}

// Len returns the number of sessions currently retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lru.Len()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
