// Package hpkp implements the HTTP Public Key Pinning check of spec §4.4.1:
// for each certificate in a chain, extract its DER-encoded
// SubjectPublicKeyInfo and consult the pin database for a hostname.
package hpkp

import (
	"crypto/x509"

	"go.uber.org/zap"

	"github.com/tlsengine/client/store"
)

// Result is the outcome of checking an entire chain against the pin
// database.
type Result struct {
	Fail  bool
	Stats store.PinCheckResult
}

// CheckChain walks certs in order. A MATCH on any cert stops iteration and
// succeeds immediately (any one match suffices). Otherwise it keeps
// checking every cert; the chain fails only if no cert produced a
// pass-like outcome (MATCH or NO_PIN_FOUND) and at least one cert
// mismatched, per spec §4.4.1.
func CheckChain(db store.HPKPStore, hostname string, certs []*x509.Certificate, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	passLike := false
	anyMismatch := false
	lastStats := store.PinNotFound

	for _, cert := range certs {
		spki := cert.RawSubjectPublicKeyInfo
		res, err := db.Check(hostname, spki)
		if err != nil {
			logger.Debug("HPKP check errored for host, skipping this cert", zap.String("host", hostname), zap.Error(err))
			lastStats = store.PinError
			continue
		}

		switch res {
		case store.PinMatch:
			logger.Debug("matching HPKP pinning found", zap.String("host", hostname))
			return Result{Fail: false, Stats: store.PinMatch}
		case store.PinNotFound:
			logger.Debug("no HPKP pinning found for host", zap.String("host", hostname))
			passLike = true
			lastStats = store.PinNotFound
		case store.PinMismatch:
			logger.Debug("HPKP public key does not match", zap.String("host", hostname))
			anyMismatch = true
			lastStats = store.PinMismatch
		default:
			lastStats = store.PinError
		}
	}

	if anyMismatch && !passLike {
		return Result{Fail: true, Stats: store.PinMismatch}
	}
	return Result{Fail: false, Stats: lastStats}
}
