package memstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlsengine/client/store"
)

func TestSessionsGetMissIsNotFoundNotError(t *testing.T) {
	s := NewSessions()
	blob, found, err := s.Get("example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, blob)
}

func TestSessionsAddThenGetRoundTrip(t *testing.T) {
	s := NewSessions()
	require.NoError(t, s.Add("example.com", []byte("ticket-data"), time.Hour))

	blob, found, err := s.Get("example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("ticket-data"), blob)
}

func TestSessionsExpireOnGet(t *testing.T) {
	s := NewSessions()
	require.NoError(t, s.Add("example.com", []byte("stale"), -time.Second))

	_, found, err := s.Get("example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOCSPAddThenLookupRoundTrip(t *testing.T) {
	o := NewOCSP()
	require.NoError(t, o.Add("fp1", time.Now().Add(time.Hour), true))

	present, revoked, err := o.Lookup("fp1")
	require.NoError(t, err)
	assert.True(t, present)
	assert.False(t, revoked)
}

func TestOCSPLookupMissIsNotPresent(t *testing.T) {
	o := NewOCSP()
	present, _, err := o.Lookup("nope")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestOCSPEntryExpires(t *testing.T) {
	o := NewOCSP()
	require.NoError(t, o.Add("fp1", time.Now().Add(-time.Second), true))

	present, _, err := o.Lookup("fp1")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestOCSPHostSeenFastPath(t *testing.T) {
	o := NewOCSP()
	seen, err := o.HostSeen("example.com")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, o.MarkHostSeen("example.com", time.Hour))
	seen, err = o.HostSeen("example.com")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestOCSPHostSeenExpires(t *testing.T) {
	o := NewOCSP()
	require.NoError(t, o.MarkHostSeen("example.com", -time.Second))
	seen, err := o.HostSeen("example.com")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHPKPNoPinIsNotFound(t *testing.T) {
	h := NewHPKP()
	res, err := h.Check("example.com", []byte("spki"))
	require.NoError(t, err)
	assert.Equal(t, store.PinNotFound, res)
}

func TestHPKPPinThenCheckMatches(t *testing.T) {
	h := NewHPKP()
	require.NoError(t, h.Pin("example.com", []byte("spki-a"), time.Hour))

	res, err := h.Check("example.com", []byte("spki-a"))
	require.NoError(t, err)
	assert.Equal(t, store.PinMatch, res)
}

func TestHPKPPinnedHostWithDifferentKeyMismatches(t *testing.T) {
	h := NewHPKP()
	require.NoError(t, h.Pin("example.com", []byte("spki-a"), time.Hour))

	res, err := h.Check("example.com", []byte("spki-b"))
	require.NoError(t, err)
	assert.Equal(t, store.PinMismatch, res)
}
