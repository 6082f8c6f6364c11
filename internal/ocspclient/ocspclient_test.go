package ocspclient

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func genCert(t *testing.T, cn string, serial int64) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func TestFingerprintIsStableHexSHA256(t *testing.T) {
	cert, _ := genCert(t, "leaf", 1)
	fp := Fingerprint(cert)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(cert))
}

func TestBuildRequestParsesBackWithGoldenCertID(t *testing.T) {
	issuer, issuerKey := genCert(t, "issuer", 1)
	subject, _ := genCert(t, "leaf", 42)

	der, nonce, err := buildRequest(subject, issuer, true)
	require.NoError(t, err)
	assert.Len(t, nonce, 16)

	var msg ocspRequestMessage
	_, err = asn1.Unmarshal(der, &msg)
	require.NoError(t, err)
	require.Len(t, msg.TBSRequest.RequestList, 1)
	assert.Equal(t, big.NewInt(42), msg.TBSRequest.RequestList[0].ReqCert.SerialNumber)
	require.Len(t, msg.TBSRequest.RequestExtensions, 1)
	assert.True(t, msg.TBSRequest.RequestExtensions[0].ID.Equal(ocspNonceOID))

	_ = issuerKey // only the public half is exercised above
}

func TestBuildRequestWithoutNonce(t *testing.T) {
	issuer, _ := genCert(t, "issuer", 1)
	subject, _ := genCert(t, "leaf", 2)

	_, nonce, err := buildRequest(subject, issuer, false)
	require.NoError(t, err)
	assert.Nil(t, nonce)
}

func TestVerifyGoodResponse(t *testing.T) {
	v, err := verify(&ocsp.Response{Status: ocsp.Good, ThisUpdate: time.Now()}, nil, Options{}, nil)
	require.NoError(t, err)
	assert.True(t, v.Definitive)
	assert.False(t, v.Revoked)
}

func TestVerifyRevokedResponse(t *testing.T) {
	v, err := verify(&ocsp.Response{Status: ocsp.Revoked, RevocationReason: 1}, nil, Options{}, nil)
	require.NoError(t, err)
	assert.True(t, v.Definitive)
	assert.True(t, v.Revoked)
}

func TestVerifyUnknownStatusFailsLikeRevoked(t *testing.T) {
	v, err := verify(&ocsp.Response{Status: ocsp.Unknown}, nil, Options{}, nil)
	require.NoError(t, err)
	assert.True(t, v.Definitive)
	assert.True(t, v.Revoked)
}

func TestVerifyFreshnessBoundary(t *testing.T) {
	// exactly 3 days old: fails (spec boundary is inclusive of the 3-day mark)
	stale := &ocsp.Response{Status: ocsp.Good, ThisUpdate: time.Now().Add(-3 * 24 * time.Hour)}
	_, err := verify(stale, nil, Options{CheckFreshness: true}, nil)
	assert.Error(t, err)

	// just under 3 days: passes
	fresh := &ocsp.Response{Status: ocsp.Good, ThisUpdate: time.Now().Add(-(3*24*time.Hour - time.Hour))}
	v, err := verify(fresh, nil, Options{CheckFreshness: true}, nil)
	require.NoError(t, err)
	assert.True(t, v.Definitive)
}

func TestVerifyNonceMismatchFails(t *testing.T) {
	resp := &ocsp.Response{
		Status: ocsp.Good,
		Extensions: []pkix.Extension{
			{Id: ocspNonceOID, Value: []byte("server-nonce")},
		},
	}
	_, err := verify(resp, []byte("client-nonce"), Options{Nonce: true}, nil)
	assert.Error(t, err)
}

func TestVerifyNonceAbsentIsTolerated(t *testing.T) {
	resp := &ocsp.Response{Status: ocsp.Good}
	v, err := verify(resp, []byte("client-nonce"), Options{Nonce: true}, nil)
	require.NoError(t, err)
	assert.True(t, v.Definitive)
}

func TestCheckCertNoResponderIsIgnoredNotError(t *testing.T) {
	subject, _ := genCert(t, "leaf", 1)
	issuer, _ := genCert(t, "issuer", 1)
	// subject.OCSPServer is empty and no Options.Server override given
	v, err := CheckCert(context.Background(), http.DefaultClient, subject, issuer, Options{})
	require.NoError(t, err)
	assert.False(t, v.Definitive)
}
