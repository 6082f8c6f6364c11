// Package trust loads CA trust material into an *x509.CertPool, per spec
// §4.2, and loads a CRL file and checks a verified chain against it for the
// handshake orchestrator when a CRL file is configured.
package trust

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultSystemDir is the fallback directory used when "system" is
// requested but the backend has no notion of default verify paths (Go's
// crypto/x509 always has one via SystemCertPool, but this fallback mirrors
// spec §4.2's explicit behavior for backends that don't).
const DefaultSystemDir = "/etc/ssl/certs"

// Result is what Load returns: the populated pool and how many certificates
// were loaded from a directory scan (0 when the system pool was used).
type Result struct {
	Pool   *x509.CertPool
	Loaded int
}

// Load builds a certificate pool from caDirectory per spec §4.2:
//   - "system": try the backend's default verify paths first; on failure,
//     fall back to DefaultSystemDir.
//   - otherwise: enumerate the directory, skipping dotfiles, loading only
//     files ending in ".pem" (case-insensitive).
//
// Zero certificates loaded is logged but not fatal — verification will
// simply fail for untrusted chains later.
func Load(caDirectory string, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if caDirectory == "system" || caDirectory == "" {
		if pool, err := x509.SystemCertPool(); err == nil && pool != nil {
			return &Result{Pool: pool}, nil
		}
		logger.Warn("could not load system default verify paths, falling back",
			zap.String("fallback_dir", DefaultSystemDir))
		caDirectory = DefaultSystemDir
	}
	return loadDirectory(caDirectory, logger)
}

func loadDirectory(dir string, logger *zap.Logger) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("could not open CA directory, no certificates loaded",
			zap.String("dir", dir), zap.Error(err))
		return &Result{Pool: x509.NewCertPool()}, nil
	}

	pool := x509.NewCertPool()
	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), ".pem") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("could not read CA file, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		if pool.AppendCertsFromPEM(data) {
			loaded++
		}
	}

	if loaded == 0 {
		logger.Error("no certificates could be loaded from CA directory", zap.String("dir", dir))
	} else {
		logger.Debug("loaded CA certificates", zap.Int("count", loaded), zap.String("dir", dir))
	}

	return &Result{Pool: pool, Loaded: loaded}, nil
}

// LoadCAFile merges an explicit CA file into pool. Per spec §4.1 step 5,
// a failure here is a warning, not fatal: the caller should continue.
func LoadCAFile(pool *x509.CertPool, path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read ca_file, continuing without it", zap.String("path", path), zap.Error(err))
		return
	}
	if !pool.AppendCertsFromPEM(data) {
		logger.Warn("backend rejected ca_file, continuing without it", zap.String("path", path))
	}
}

// LoadCRL reads a CRL file in DER or PEM form. Errors are returned to the
// caller (engine init), which logs and disables CRL checking rather than
// failing construction — CRLs are an enhancement, not core trust material.
func LoadCRL(path string) (*x509.RevocationList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trust: reading crl_file %s: %w", path, err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "-----BEGIN") {
		if block, _ := pem.Decode(data); block != nil {
			data = block.Bytes
		}
	}
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, fmt.Errorf("trust: parsing crl_file %s: %w", path, err)
	}
	return crl, nil
}

// CheckRevoked enforces crl against every certificate in chain, per spec
// §4.1 step 4 ("enable CRL checks ... for the full chain", mirroring the
// original's X509_V_FLAG_CRL_CHECK | X509_V_FLAG_CRL_CHECK_ALL). A nil crl
// means CRL checking is disabled and always passes.
func CheckRevoked(crl *x509.RevocationList, chain []*x509.Certificate) error {
	if crl == nil {
		return nil
	}
	revoked := make(map[string]struct{}, len(crl.RevokedCertificateEntries))
	for _, entry := range crl.RevokedCertificateEntries {
		if entry.SerialNumber != nil {
			revoked[entry.SerialNumber.String()] = struct{}{}
		}
	}
	for _, cert := range chain {
		if cert.SerialNumber == nil {
			continue
		}
		if _, ok := revoked[cert.SerialNumber.String()]; ok {
			return fmt.Errorf("trust: certificate %s (serial %s) revoked by CRL",
				cert.Subject.CommonName, cert.SerialNumber.String())
		}
	}
	return nil
}
