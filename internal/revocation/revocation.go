// Package revocation implements the chain-verification callback pipeline of
// spec §4.4: HPKP pinning (§4.4.1), live OCSP chain checking (§4.4.2), and
// stapled OCSP validation (§4.4.3).
//
// The original design smuggles per-handshake state (hostname,
// verifying_ocsp, ocsp_checked) through a single indexed slot on a shared
// trust store, which spec §9 flags as "the single most important
// re-architecture point" and unsafe across concurrent handshakes sharing a
// context. Here, State is a value owned by one handshake's closure (see
// SPEC_FULL.md §0): crypto/tls.Config.VerifyConnection is invoked exactly
// once per connection with the verified chain already assembled, so the
// "only override on the first call" rule of spec §4.4 step zero is met
// trivially — there is only one call — and no shared mutable slot, and
// therefore no verifying_ocsp reentrancy guard, is needed at all.
package revocation

import (
	"context"
	"crypto/x509"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tlsengine/client/internal/hpkp"
	"github.com/tlsengine/client/internal/ocspclient"
	"github.com/tlsengine/client/store"
)

// ocspCacheTTL is the fixed cache lifetime for an OCSP verdict, per spec §3.
const ocspCacheTTL = 1 * time.Hour

// State records the per-handshake outcome the orchestrator copies onto its
// stats payload, mirroring spec §3's per-connection verification state
// (minus verifying_ocsp/ocsp_checked, which have no meaning once the
// pipeline runs exactly once per handshake).
type State struct {
	CertChainSize int
	HPKPStats     store.PinCheckResult
	OCSPStats     ocspStats
}

type ocspStats struct {
	NValid   int
	NRevoked int
	NIgnored int
}

// Config bundles the inputs the revocation pipeline needs.
type Config struct {
	Hostname   string
	HPKPCache  store.HPKPStore // nil disables HPKP
	OCSPCache  store.OCSPCache
	OCSPEnable bool
	OCSPServer string // explicit override, spec §3 ocsp_server
	OCSPNonce  bool
	HTTPClient ocspclient.HTTPDoer
	Logger     *zap.Logger
}

// CheckChain runs the pipeline of spec §4.4 against the verified chain:
// HPKP first (mismatch forces fail), then live OCSP across the chain
// (any revocation forces fail). It never runs OCSP against the final
// (self-signed root) certificate, since it has no issuer in the chain.
func CheckChain(ctx context.Context, cfg Config, chain []*x509.Certificate) (*State, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	state := &State{CertChainSize: len(chain), HPKPStats: store.PinNotFound}

	if cfg.HPKPCache != nil {
		res := hpkp.CheckChain(cfg.HPKPCache, cfg.Hostname, chain, logger)
		state.HPKPStats = res.Stats
		if res.Fail {
			return state, errCertificate("HPKP pin mismatch for " + cfg.Hostname)
		}
	}

	if cfg.OCSPEnable {
		if err := checkChainOCSP(ctx, cfg, chain, state, logger); err != nil {
			return state, err
		}
	}

	return state, nil
}

func checkChainOCSP(ctx context.Context, cfg Config, chain []*x509.Certificate, state *State, logger *zap.Logger) error {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	// Host-seen fast path (SPEC_FULL.md §3, ported from the original's
	// second ocsp_host_cache keyspace): if this exact host's chain was
	// already walked and found clean within the OCSP cache TTL, skip
	// re-querying every certificate in the chain again.
	if cfg.OCSPCache != nil {
		if seen, err := cfg.OCSPCache.HostSeen(cfg.Hostname); err == nil && seen {
			logger.Debug("host already OCSP-checked recently, skipping chain walk", zap.String("host", cfg.Hostname))
			return nil
		}
	}

	for i := 0; i+1 < len(chain); i++ {
		subject, issuer := chain[i], chain[i+1]
		fp := ocspclient.Fingerprint(subject)

		if cfg.OCSPCache != nil {
			if present, revoked, err := cfg.OCSPCache.Lookup(fp); err == nil && present {
				if revoked {
					state.OCSPStats.NRevoked++
				} else {
					state.OCSPStats.NValid++
				}
				continue
			}
		}

		verdict, err := ocspclient.CheckCert(ctx, client, subject, issuer, ocspclient.Options{
			Nonce:  cfg.OCSPNonce,
			Server: cfg.OCSPServer,
			Logger: logger,
		})
		if err != nil {
			// nonce mismatch or similar verification failure: fail the
			// handshake outright per spec testable property 7.
			return errCertificate(err.Error())
		}
		if !verdict.Definitive {
			state.OCSPStats.NIgnored++
			continue
		}

		if verdict.Revoked {
			state.OCSPStats.NRevoked++
		} else {
			state.OCSPStats.NValid++
		}
		if cfg.OCSPCache != nil {
			_ = cfg.OCSPCache.Add(fp, time.Now().Add(ocspCacheTTL), !verdict.Revoked)
		}
	}

	if state.OCSPStats.NRevoked > 0 {
		return errCertificate("OCSP chain check found a revoked certificate")
	}
	if cfg.OCSPCache != nil {
		_ = cfg.OCSPCache.MarkHostSeen(cfg.Hostname, ocspCacheTTL)
	}
	return nil
}

// CheckStapled validates a server-delivered OCSP staple per spec §4.4.3: no
// staple present is not a failure; an unparseable one is. This path does
// not update the OCSP cache and runs independently of CheckChain.
func CheckStapled(staple []byte, chain []*x509.Certificate, checkFreshness bool, logger *zap.Logger) error {
	if len(staple) == 0 {
		return nil
	}
	if len(chain) < 2 {
		return errCertificate("stapled OCSP response present but chain too short to verify")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	subject, issuer := chain[0], chain[1]
	verdict, err := ocspclient.VerifyStapled(staple, subject, issuer, checkFreshness, logger)
	if err != nil {
		return errCertificate("stapled OCSP response failed verification: " + err.Error())
	}
	if verdict.Revoked {
		return errCertificate("stapled OCSP response reports revoked")
	}
	return nil
}

type certificateError struct{ msg string }

func (e *certificateError) Error() string { return e.msg }

func errCertificate(msg string) error { return &certificateError{msg: msg} }
