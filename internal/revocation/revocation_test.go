package revocation

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlsengine/client/store"
	"github.com/tlsengine/client/store/memstore"
)

func genChain(t *testing.T) []*x509.Certificate {
	t.Helper()
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	leafCert, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	return []*x509.Certificate{leafCert, caCert}
}

func TestCheckChainNoHPKPNoOCSPPasses(t *testing.T) {
	chain := genChain(t)
	state, err := CheckChain(context.Background(), Config{Hostname: "example.com"}, chain)
	require.NoError(t, err)
	assert.Equal(t, len(chain), state.CertChainSize)
	assert.Equal(t, store.PinNotFound, state.HPKPStats)
}

func TestCheckChainHPKPMismatchFails(t *testing.T) {
	chain := genChain(t)
	hpkp := memstore.NewHPKP()
	require.NoError(t, hpkp.Pin("example.com", []byte("some-other-key"), time.Hour))

	_, err := CheckChain(context.Background(), Config{Hostname: "example.com", HPKPCache: hpkp}, chain)
	require.Error(t, err)
}

func TestCheckChainOCSPDisabledSkipsNetworkCheck(t *testing.T) {
	chain := genChain(t)
	cfg := Config{Hostname: "example.com", OCSPEnable: false}
	state, err := CheckChain(context.Background(), cfg, chain)
	require.NoError(t, err)
	assert.Equal(t, 0, state.OCSPStats.NValid)
	assert.Equal(t, 0, state.OCSPStats.NRevoked)
}

func TestCheckChainOCSPWithNoResponderIsIgnored(t *testing.T) {
	// The generated test chain carries no OCSPServer URL, so the chain
	// walk treats every hop as "ignored", never revoked.
	chain := genChain(t)
	cache := memstore.NewOCSP()
	cfg := Config{Hostname: "example.com", OCSPEnable: true, OCSPCache: cache}
	state, err := CheckChain(context.Background(), cfg, chain)
	require.NoError(t, err)
	assert.Equal(t, 1, state.OCSPStats.NIgnored)
}

func TestCheckChainOCSPHostSeenFastPathSkipsWalk(t *testing.T) {
	chain := genChain(t)
	cache := memstore.NewOCSP()
	require.NoError(t, cache.MarkHostSeen("example.com", time.Hour))

	cfg := Config{Hostname: "example.com", OCSPEnable: true, OCSPCache: cache}
	state, err := CheckChain(context.Background(), cfg, chain)
	require.NoError(t, err)
	// fast path returns before touching any certificate in the chain
	assert.Equal(t, 0, state.OCSPStats.NIgnored)
	assert.Equal(t, 0, state.OCSPStats.NValid)
}

func TestCheckStapledNoStapleIsNotFailure(t *testing.T) {
	chain := genChain(t)
	err := CheckStapled(nil, chain, false, nil)
	assert.NoError(t, err)
}

func TestCheckStapledMalformedIsFailure(t *testing.T) {
	chain := genChain(t)
	err := CheckStapled([]byte("not-a-real-ocsp-response"), chain, false, nil)
	assert.Error(t, err)
}
