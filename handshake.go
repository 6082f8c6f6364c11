package tlsengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/tlsengine/client/internal/revocation"
	"github.com/tlsengine/client/internal/trust"
)

// maxALPNToken is spec §4.3 step 7's per-token length cap.
const maxALPNToken = 64

// parseALPN splits raw (already comma-separated by the caller's config,
// or passed pre-split) into the wire offering: empty tokens dropped,
// tokens over maxALPNToken bytes dropped, per spec testable boundary
// behaviors ("alpn="" ": no offering, succeeds" and "token longer than 64
// bytes: skipped, not fatal").
func parseALPN(tokens []string) []string {
	var out []string
	for _, raw := range tokens {
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" || len(tok) > maxALPNToken {
				continue
			}
			out = append(out, tok)
		}
	}
	return out
}

// Open drives the handshake orchestrator of spec §4.3 over conn, which
// must already be a connected transport (the TCP socket layer is an
// out-of-scope capability per spec §1). hostname is both the SNI value
// and, when CheckHostname is set, the verification target.
// connectTimeout bounds the handshake: zero or negative sets no deadline
// and waits indefinitely (unlike Conn.Read/Write, where zero means
// non-blocking); a positive value is applied as a deadline on conn.
func (e *Engine) Open(ctx context.Context, conn net.Conn, hostname string, connectTimeout time.Duration) (*Conn, error) {
	if conn == nil {
		return nil, newError("Open", KindInvalid, errors.New("nil connection"))
	}
	if hostname == "" {
		return nil, newError("Open", KindInvalid, errors.New("empty hostname"))
	}

	if e.initCount() == 0 {
		if err := e.Init(); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	cfg := e.cfg
	trustPool := e.trustPool
	crl := e.crl
	base := e.baseTLS.Clone()
	e.mu.Unlock()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tlsConf := base
	tlsConf.ServerName = hostname

	if cfg.TLSSessionCache != nil {
		tlsConf.ClientSessionCache = newSessionCacheAdapter(cfg.TLSSessionCache, logger)
	}
	if offering := parseALPN(cfg.ALPN); len(offering) > 0 {
		tlsConf.NextProtos = offering
	}

	var revState *revocation.State
	if cfg.CheckCertificate {
		tlsConf.InsecureSkipVerify = true
		if !cfg.CheckHostname {
			logger.Info("check_hostname disabled, subject name will not be verified", zap.String("host", hostname))
		}
		httpClient := cfg.OCSPHTTPClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		tlsConf.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return &verifyError{errors.New("tlsengine: no peer certificates presented")}
			}
			leaf := cs.PeerCertificates[0]
			intermediates := x509.NewCertPool()
			for _, c := range cs.PeerCertificates[1:] {
				intermediates.AddCert(c)
			}
			opts := x509.VerifyOptions{Roots: trustPool, Intermediates: intermediates}
			if cfg.CheckHostname {
				opts.DNSName = hostname
			}
			chains, err := leaf.Verify(opts)
			if err != nil {
				return &verifyError{err}
			}
			chain := chains[0]

			if err := trust.CheckRevoked(crl, chain); err != nil {
				return &verifyError{err}
			}

			if cfg.OCSPStapling {
				if err := revocation.CheckStapled(cs.OCSPResponse, chain, cfg.OCSPDate, logger); err != nil {
					return &verifyError{err}
				}
			}

			st, err := revocation.CheckChain(ctx, revocation.Config{
				Hostname:   hostname,
				HPKPCache:  cfg.HPKPCache,
				OCSPCache:  cfg.OCSPCertCache,
				OCSPEnable: cfg.OCSP,
				OCSPServer: cfg.OCSPServer,
				OCSPNonce:  cfg.OCSPNonce,
				HTTPClient: httpClient,
				Logger:     logger,
			}, chain)
			revState = st
			if err != nil {
				return &verifyError{err}
			}
			return nil
		}
	}

	if connectTimeout > 0 {
		deadline := time.Now().Add(connectTimeout)
		_ = conn.SetDeadline(deadline)
	}

	tlsConn := tls.Client(conn, tlsConf)
	err := tlsConn.HandshakeContext(ctx)
	_ = conn.SetDeadline(time.Time{})

	if err != nil {
		kind := classifyHandshakeError(err)
		return nil, newError("Open", kind, err)
	}

	cs := tlsConn.ConnectionState()

	httpProto := HTTPProtocolUnknown
	switch {
	case cs.NegotiatedProtocol == http2.NextProtoTLS:
		httpProto = HTTPProtocol2
	case cs.NegotiatedProtocol != "":
		httpProto = HTTPProtocol11
	}

	certChainSize := len(cs.PeerCertificates)
	hpkpStats := HPKPNoPinFound
	var ocspStats OCSPStats
	if revState != nil {
		certChainSize = revState.CertChainSize
		hpkpStats = mapPinResult(revState.HPKPStats)
		ocspStats = OCSPStats{
			Hostname: hostname,
			NValid:   revState.OCSPStats.NValid,
			NRevoked: revState.OCSPStats.NRevoked,
			NIgnored: revState.OCSPStats.NIgnored,
			Stapling: false,
		}
	}

	stats := TLSStats{
		Hostname:      hostname,
		ALPNProtocol:  cs.NegotiatedProtocol,
		TLSVersion:    mapTLSVersion(cs.Version),
		Resumed:       cs.DidResume,
		HTTPProtocol:  httpProto,
		CertChainSize: certChainSize,
		HPKPStats:     hpkpStats,
		ConnectionID:  uuid.NewString(),
	}

	if cfg.PrintInfo {
		logger.Info("tls handshake complete",
			zap.String("host", hostname),
			zap.Uint16("cipher_suite", cs.CipherSuite),
			zap.Int("tls_version", int(stats.TLSVersion)),
			zap.Bool("resumed", cs.DidResume))
	}

	cfg.Stats.TLSHandshake(stats)
	if cfg.OCSP && revState != nil {
		cfg.Stats.OCSPCheck(ocspStats)
	}

	return &Conn{tlsConn: tlsConn, logger: logger, Stats: stats}, nil
}

// verifyError marks an error as having originated from VerifyConnection
// (chain verification, HPKP, or OCSP), so classifyHandshakeError can map
// it to KindCertificate per spec §4.3 step 10 — "if the last backend
// error identifies a certificate verification failure, return
// E_CERTIFICATE". Since this engine performs verification itself (via
// InsecureSkipVerify + VerifyConnection rather than crypto/tls's built-in
// path), crypto/tls returns our error as-is rather than wrapping it in
// *tls.CertificateVerificationError, so that type alone isn't a reliable
// signal here.
type verifyError struct{ err error }

func (e *verifyError) Error() string { return e.err.Error() }
func (e *verifyError) Unwrap() error { return e.err }

func classifyHandshakeError(err error) Kind {
	var ve *verifyError
	if errors.As(err, &ve) {
		return KindCertificate
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return KindCertificate
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindHandshake
}

func mapPinResult(r PinCheckResult) HPKPResult {
	switch r {
	case PinMatch:
		return HPKPMatch
	case PinMismatch:
		return HPKPMismatch
	case PinError:
		return HPKPError
	default:
		return HPKPNoPinFound
	}
}

func mapTLSVersion(v uint16) TLSVersion {
	switch v {
	case tls.VersionSSL30:
		return TLSVersionSSL3
	case tls.VersionTLS10:
		return TLSVersionTLS10
	case tls.VersionTLS11:
		return TLSVersionTLS11
	case tls.VersionTLS12:
		return TLSVersionTLS12
	case tls.VersionTLS13:
		return TLSVersionTLS13
	default:
		return TLSVersionUnknown
	}
}
