// Package memstore provides in-memory implementations of the store
// capability contracts, suitable as defaults and for tests. None of them
// persist across process restarts.
package memstore

import (
	"sync"
	"time"

	"github.com/tlsengine/client/store"
)

// Sessions is an in-memory SessionStore keyed by hostname, TTL-expiring
// entries lazily on Get (spec: TLS sessions have a fixed TTL of 18h).
type Sessions struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
}

type sessionEntry struct {
	blob    []byte
	expires time.Time
}

func NewSessions() *Sessions {
	return &Sessions{entries: make(map[string]sessionEntry)}
}

func (s *Sessions) Get(host string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[host]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expires) {
		delete(s.entries, host)
		return nil, false, nil
	}
	return e.blob, true, nil
}

func (s *Sessions) Add(host string, blob []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.entries[host] = sessionEntry{blob: cp, expires: time.Now().Add(ttl)}
	return nil
}

// OCSP is an in-memory OCSPCache keyed by certificate fingerprint, with the
// optional host-seen fast path.
type OCSP struct {
	mu      sync.Mutex
	byFP    map[string]ocspEntry
	byHost  map[string]time.Time
}

type ocspEntry struct {
	revoked bool
	expiry  time.Time
}

func NewOCSP() *OCSP {
	return &OCSP{byFP: make(map[string]ocspEntry), byHost: make(map[string]time.Time)}
}

func (o *OCSP) Lookup(fingerprint string) (bool, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byFP[fingerprint]
	if !ok {
		return false, false, nil
	}
	if time.Now().After(e.expiry) {
		delete(o.byFP, fingerprint)
		return false, false, nil
	}
	return true, e.revoked, nil
}

// Add stores (fingerprint, revoked) with the given absolute expiry.
// A fingerprint is never both revoked and valid at once: later writes
// overwrite, per spec §3's invariant.
func (o *OCSP) Add(fingerprint string, expiry time.Time, valid bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byFP[fingerprint] = ocspEntry{revoked: !valid, expiry: expiry}
	return nil
}

func (o *OCSP) HostSeen(host string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	until, ok := o.byHost[host]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(o.byHost, host)
		return false, nil
	}
	return true, nil
}

func (o *OCSP) MarkHostSeen(host string, ttl time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byHost[host] = time.Now().Add(ttl)
	return nil
}

// HPKP is an in-memory HPKPStore keyed by hostname, holding a set of pinned
// DER-encoded SPKI values per host (stored as-is, not hashed).
type HPKP struct {
	mu   sync.Mutex
	pins map[string]map[string]struct{}
}

func NewHPKP() *HPKP {
	return &HPKP{pins: make(map[string]map[string]struct{})}
}

func (h *HPKP) Check(host string, spkiDER []byte) (store.PinCheckResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.pins[host]
	if !ok || len(set) == 0 {
		return store.PinNotFound, nil
	}
	if _, ok := set[digest(spkiDER)]; ok {
		return store.PinMatch, nil
	}
	return store.PinMismatch, nil
}

func (h *HPKP) Pin(host string, spkiDER []byte, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.pins[host]
	if !ok {
		set = make(map[string]struct{})
		h.pins[host] = set
	}
	set[digest(spkiDER)] = struct{}{}
	return nil
}

func digest(spkiDER []byte) string {
	return string(spkiDER)
}
