package tlsengine

// TLSVersion mirrors spec §6's numeric version encoding.
type TLSVersion int

const (
	TLSVersionUnknown TLSVersion = -1
	TLSVersionSSL3    TLSVersion = 1
	TLSVersionTLS10   TLSVersion = 2
	TLSVersionTLS11   TLSVersion = 3
	TLSVersionTLS12   TLSVersion = 4
	TLSVersionTLS13   TLSVersion = 5
)

// HTTPProtocol is the ALPN-selected application protocol, flagged per spec
// §4.3 step 11 ("if h2, flag the transport as HTTP/2").
type HTTPProtocol string

const (
	HTTPProtocolUnknown HTTPProtocol = ""
	HTTPProtocol11      HTTPProtocol = "HTTP/1.1"
	HTTPProtocol2       HTTPProtocol = "HTTP/2"
)

// HPKPResult is the per-connection HPKP outcome of spec §3.
type HPKPResult int

const (
	HPKPMatch HPKPResult = iota
	HPKPNoPinFound
	HPKPMismatch
	HPKPError
)

func (r HPKPResult) String() string {
	switch r {
	case HPKPMatch:
		return "MATCH"
	case HPKPMismatch:
		return "MISMATCH"
	case HPKPError:
		return "ERROR"
	default:
		return "NO_PIN_FOUND"
	}
}

// TLSStats is the stats payload emitted after a handshake, per spec §6.
type TLSStats struct {
	Hostname       string
	ALPNProtocol   string
	TLSVersion     TLSVersion
	FalseStart     bool
	TCPFastOpen    bool
	Resumed        bool
	HTTPProtocol   HTTPProtocol
	CertChainSize  int
	HPKPStats      HPKPResult
	ConnectionID   string
}

// OCSPStats is the stats payload emitted after a chain OCSP check, per spec
// §4.4.2 ("emit the OCSP stats callback with (nvalid, nrevoked, nignored,
// stapling=false)").
type OCSPStats struct {
	Hostname string
	NValid   int
	NRevoked int
	NIgnored int
	Stapling bool
}

// StatsSink is the pluggable callback capability of spec §6.
type StatsSink interface {
	TLSHandshake(TLSStats)
	OCSPCheck(OCSPStats)
}

type noopStatsSink struct{}

func (noopStatsSink) TLSHandshake(TLSStats) {}
func (noopStatsSink) OCSPCheck(OCSPStats)   {}
