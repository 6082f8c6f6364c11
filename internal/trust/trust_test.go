package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedPEM(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestLoadDirectorySkipsDotfilesAndNonPEM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ca1.pem"), selfSignedPEM(t, "ca1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.pem"), selfSignedPEM(t, "hidden"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not a cert"), 0o644))

	res, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)
}

func TestLoadMissingDirectoryIsNotFatal(t *testing.T) {
	res, err := Load(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Loaded)
	assert.NotNil(t, res.Pool)
}

func TestLoadCAFileMergesIntoPool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.pem")
	require.NoError(t, os.WriteFile(path, selfSignedPEM(t, "extra"), 0o644))

	pool := x509.NewCertPool()
	LoadCAFile(pool, path, nil)
	assert.Equal(t, 1, len(pool.Subjects())) //nolint:staticcheck // test-only inspection
}

func TestLoadCAFileMissingPathIsWarnOnly(t *testing.T) {
	pool := x509.NewCertPool()
	assert.NotPanics(t, func() {
		LoadCAFile(pool, filepath.Join(t.TempDir(), "missing.pem"), nil)
	})
}

func TestLoadCRLRoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	issuer := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "issuer"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign,
	}
	issuerDER, err := x509.CreateCertificate(rand.Reader, issuer, issuer, &key.PublicKey, key)
	require.NoError(t, err)
	issuerCert, err := x509.ParseCertificate(issuerDER)
	require.NoError(t, err)

	crlDER, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(24 * time.Hour),
	}, issuerCert, key)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.crl")
	require.NoError(t, os.WriteFile(path, crlDER, 0o644))

	crl, err := LoadCRL(path)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), crl.Number)
}

func TestLoadCRLMissingFile(t *testing.T) {
	_, err := LoadCRL(filepath.Join(t.TempDir(), "missing.crl"))
	assert.Error(t, err)
}
