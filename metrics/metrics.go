// Package metrics provides a Prometheus-backed tlsengine.StatsSink, the
// optional observability surface named in SPEC_FULL.md's domain stack:
// spec §6's stats callbacks wired to github.com/prometheus/client_golang
// the way caddy registers its own admin-API counters (see the top-level
// metrics.go in this module's original teacher tree).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tlsengine/client"
)

// Sink implements tlsengine.StatsSink, recording handshake and OCSP
// outcomes as Prometheus counters/histograms under the "tlsengine"
// namespace.
type Sink struct {
	handshakes   *prometheus.CounterVec
	resumed      *prometheus.CounterVec
	hpkpResults  *prometheus.CounterVec
	ocspVerdicts *prometheus.CounterVec
	chainSize    prometheus.Histogram
}

var _ tlsengine.StatsSink = (*Sink)(nil)

// NewSink builds and registers the metric families against reg. Passing
// prometheus.DefaultRegisterer matches the common case; tests should pass
// a fresh prometheus.NewRegistry() to avoid duplicate-registration panics
// across test runs.
func NewSink(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	const ns = "tlsengine"

	return &Sink{
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "handshakes_total",
			Help:      "Count of completed TLS handshakes by negotiated protocol and version.",
		}, []string{"alpn_protocol", "tls_version"}),
		resumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "handshake_resumed_total",
			Help:      "Count of handshakes by whether the session was resumed.",
		}, []string{"resumed"}),
		hpkpResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "hpkp_result_total",
			Help:      "Count of HPKP pin-check outcomes by result.",
		}, []string{"result"}),
		ocspVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "ocsp_verdicts_total",
			Help:      "Count of per-chain OCSP verdicts by outcome and source.",
		}, []string{"outcome", "stapled"}),
		chainSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "cert_chain_size",
			Help:      "Size of the verified certificate chain.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		}),
	}
}

// TLSHandshake records a completed handshake's stats payload (spec §6).
func (s *Sink) TLSHandshake(stats tlsengine.TLSStats) {
	s.handshakes.WithLabelValues(stats.ALPNProtocol, tlsVersionLabel(stats.TLSVersion)).Inc()
	s.resumed.WithLabelValues(boolLabel(stats.Resumed)).Inc()
	s.hpkpResults.WithLabelValues(hpkpLabel(stats.HPKPStats)).Inc()
	s.chainSize.Observe(float64(stats.CertChainSize))
}

// OCSPCheck records a chain OCSP check's stats payload (spec §6).
func (s *Sink) OCSPCheck(stats tlsengine.OCSPStats) {
	s.ocspVerdicts.WithLabelValues("valid", boolLabel(stats.Stapling)).Add(float64(stats.NValid))
	s.ocspVerdicts.WithLabelValues("revoked", boolLabel(stats.Stapling)).Add(float64(stats.NRevoked))
	s.ocspVerdicts.WithLabelValues("ignored", boolLabel(stats.Stapling)).Add(float64(stats.NIgnored))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func tlsVersionLabel(v tlsengine.TLSVersion) string {
	switch v {
	case tlsengine.TLSVersionSSL3:
		return "ssl3"
	case tlsengine.TLSVersionTLS10:
		return "tls1.0"
	case tlsengine.TLSVersionTLS11:
		return "tls1.1"
	case tlsengine.TLSVersionTLS12:
		return "tls1.2"
	case tlsengine.TLSVersionTLS13:
		return "tls1.3"
	default:
		return "unknown"
	}
}

func hpkpLabel(r tlsengine.HPKPResult) string {
	switch r {
	case tlsengine.HPKPMatch:
		return "match"
	case tlsengine.HPKPMismatch:
		return "mismatch"
	case tlsengine.HPKPError:
		return "error"
	default:
		return "no_pin_found"
	}
}
