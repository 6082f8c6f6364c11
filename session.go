package tlsengine

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tlsengine/client/store"
)

// sessionResumeTTL is the fixed resumption TTL of spec §3 and §4.6.
const sessionResumeTTL = 18 * time.Hour

// packSession and unpackSession combine the session ticket and the
// marshaled tls.SessionState that NewResumptionState/ResumptionState need
// as two separate values into the single opaque blob spec §3 and §4.6
// describe ("serialize the current session, store with TTL 18h").
func packSession(ticket, stateBytes []byte) []byte {
	buf := make([]byte, 4+len(ticket)+len(stateBytes))
	binary.BigEndian.PutUint32(buf, uint32(len(ticket)))
	copy(buf[4:], ticket)
	copy(buf[4+len(ticket):], stateBytes)
	return buf
}

func unpackSession(blob []byte) (ticket, stateBytes []byte, err error) {
	if len(blob) < 4 {
		return nil, nil, errors.New("tlsengine: session blob too short")
	}
	n := binary.BigEndian.Uint32(blob)
	if uint64(4+n) > uint64(len(blob)) {
		return nil, nil, errors.New("tlsengine: session blob truncated")
	}
	return blob[4 : 4+n], blob[4+n:], nil
}

// sessionCacheAdapter implements tls.ClientSessionCache on top of a
// store.SessionStore, the session resume store adapter of spec §4.6.
// crypto/tls's SessionState/ResumptionState serialization is the Go-native
// equivalent of the original's "serialize/deserialize opaque session
// blobs" step; lookup/save failures are logged and non-fatal, forcing a
// full handshake, exactly as spec §4.6 prescribes.
type sessionCacheAdapter struct {
	store  store.SessionStore
	logger *zap.Logger
}

func newSessionCacheAdapter(s store.SessionStore, logger *zap.Logger) *sessionCacheAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionCacheAdapter{store: s, logger: logger}
}

// Get looks up a resumable session for sessionKey (the hostname, per spec
// §4.6's "keyed by hostname"). A parse failure is Open Question (c) from
// spec §9: logged, treated as a cache miss, falling through to a full
// handshake rather than aborting Open.
func (a *sessionCacheAdapter) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	if a.store == nil {
		return nil, false
	}
	blob, found, err := a.store.Get(sessionKey)
	if err != nil {
		a.logger.Debug("session cache lookup failed, forcing full handshake",
			zap.String("host", sessionKey), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	ticket, stateBytes, err := unpackSession(blob)
	if err != nil {
		a.logger.Debug("stored session blob malformed, forcing full handshake",
			zap.String("host", sessionKey), zap.Error(err))
		return nil, false
	}
	state, err := tls.ParseSessionState(stateBytes)
	if err != nil {
		a.logger.Debug("stored session blob unparseable, forcing full handshake",
			zap.String("host", sessionKey), zap.Error(err))
		return nil, false
	}
	cs, err := tls.NewResumptionState(ticket, state)
	if err != nil {
		a.logger.Debug("stored session state not resumable, forcing full handshake",
			zap.String("host", sessionKey), zap.Error(err))
		return nil, false
	}
	return cs, true
}

// Put serializes cs and saves it under sessionKey with the fixed 18h TTL
// of spec §4.6. Errors here are logged, not propagated: a failed save
// merely means the next Open for this host performs a full handshake.
func (a *sessionCacheAdapter) Put(sessionKey string, cs *tls.ClientSessionState) {
	if a.store == nil || cs == nil {
		return
	}
	ticket, state, err := cs.ResumptionState()
	if err != nil {
		a.logger.Debug("could not extract resumption state, not caching session",
			zap.String("host", sessionKey), zap.Error(err))
		return
	}
	if state == nil {
		return // nothing resumable (e.g. session cache miss never populated a ticket)
	}
	stateBytes, err := state.Bytes()
	if err != nil {
		a.logger.Debug("could not serialize session state, not caching session",
			zap.String("host", sessionKey), zap.Error(err))
		return
	}
	if err := a.store.Add(sessionKey, packSession(ticket, stateBytes), sessionResumeTTL); err != nil {
		a.logger.Debug("could not save session, continuing without caching",
			zap.String("host", sessionKey), zap.Error(err))
	}
}
