// Package tlsengine implements the TLS client engine of a network-transfer
// library: establishing a secure transport channel to a remote server,
// validating its identity against configurable trust material, performing
// revocation checks through OCSP and HPKP, negotiating ALPN, persisting
// session tickets for resumption, and providing a timeout-aware
// byte-oriented read/write interface over the negotiated channel.
package tlsengine

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// X509Format is the encoding of a CA/cert/key/CRL file on disk.
type X509Format int

const (
	FormatPEM X509Format = iota
	FormatDER
)

// Protocol selects the minimum TLS version and cipher profile. AUTO and PFS
// are the two backend-agnostic priority strings from spec §3; anything else
// is treated as an opaque backend-specific priority string and only
// constrains the minimum version.
type Protocol string

const (
	ProtocolSSL    Protocol = "SSL"
	ProtocolTLS10  Protocol = "TLSv1"
	ProtocolTLS11  Protocol = "TLSv1_1"
	ProtocolTLS12  Protocol = "TLSv1_2"
	ProtocolTLS13  Protocol = "TLSv1_3"
	ProtocolAuto   Protocol = "AUTO"
	ProtocolPFS    Protocol = "PFS"
)

// Config is the process-wide (or, per §9's safer re-architecture, per-Engine)
// configuration. The zero value is not ready to use; call NewConfig.
type Config struct {
	SecureProtocol Protocol

	CADirectory string
	CAFile      string
	CertFile    string
	KeyFile     string
	CRLFile     string

	CAType   X509Format
	CertType X509Format
	KeyType  X509Format

	OCSPServer string
	ALPN       []string

	CheckCertificate bool
	CheckHostname    bool
	PrintInfo        bool
	OCSP             bool
	OCSPStapling     bool
	OCSPNonce        bool
	OCSPDate         bool

	OCSPCertCache   OCSPCache
	TLSSessionCache SessionStore
	HPKPCache       HPKPStore

	// OCSPHTTPClient is the "execute HTTP request, return body and status"
	// capability of spec §6, used to POST OCSP requests. A nil value falls
	// back to http.DefaultClient at Open time.
	OCSPHTTPClient *http.Client

	Logger *zap.Logger
	Stats  StatsSink
}

// NewConfig returns a Config with the defaults from spec §3: verification
// and hostname checks on, OCSP and stapling on, nonce on, freshness off,
// AUTO protocol, CA directory "system".
func NewConfig() *Config {
	return &Config{
		SecureProtocol:   ProtocolAuto,
		CADirectory:      "system",
		CAType:           FormatPEM,
		CertType:         FormatPEM,
		KeyType:          FormatPEM,
		CheckCertificate: true,
		CheckHostname:    true,
		OCSP:             true,
		OCSPStapling:     true,
		OCSPNonce:        true,
		OCSPDate:         false,
		Logger:           zap.NewNop(),
		Stats:            noopStatsSink{},
	}
}

// Set implements the three-setter config API of spec §6 ("string, object,
// integer" by key), for callers that build configuration dynamically (e.g.
// from a command-line flag or a plugin) instead of setting struct fields.
// An unknown key is a Configuration-kind error: logged and ignored, per
// spec §7's taxonomy — it never returns an error to avoid forcing every
// caller to handle a class of mistake that is never fatal.
func (c *Config) Set(key string, value any) {
	switch key {
	case "secure_protocol":
		if s, ok := value.(string); ok {
			c.SecureProtocol = Protocol(s)
		}
	case "ca_directory":
		if s, ok := value.(string); ok {
			c.CADirectory = s
		}
	case "ca_file":
		if s, ok := value.(string); ok {
			c.CAFile = s
		}
	case "cert_file":
		if s, ok := value.(string); ok {
			c.CertFile = s
		}
	case "key_file":
		if s, ok := value.(string); ok {
			c.KeyFile = s
		}
	case "crl_file":
		if s, ok := value.(string); ok {
			c.CRLFile = s
		}
	case "ocsp_server":
		if s, ok := value.(string); ok {
			c.OCSPServer = s
		}
	case "check_certificate":
		if b, ok := value.(bool); ok {
			c.CheckCertificate = b
		}
	case "check_hostname":
		if b, ok := value.(bool); ok {
			c.CheckHostname = b
		}
	case "print_info":
		if b, ok := value.(bool); ok {
			c.PrintInfo = b
		}
	case "ocsp":
		if b, ok := value.(bool); ok {
			c.OCSP = b
		}
	case "ocsp_stapling":
		if b, ok := value.(bool); ok {
			c.OCSPStapling = b
		}
	case "ocsp_nonce":
		if b, ok := value.(bool); ok {
			c.OCSPNonce = b
		}
	case "ocsp_date":
		if b, ok := value.(bool); ok {
			c.OCSPDate = b
		}
	case "ocsp_cert_cache":
		if db, ok := value.(OCSPCache); ok {
			c.OCSPCertCache = db
		}
	case "tls_session_cache":
		if db, ok := value.(SessionStore); ok {
			c.TLSSessionCache = db
		}
	case "hpkp_cache":
		if db, ok := value.(HPKPStore); ok {
			c.HPKPCache = db
		}
	default:
		c.logConfigWarning(key)
	}
}

func (c *Config) logConfigWarning(key string) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("unknown config key, ignoring", zap.String("key", key))
}

// fileConfig is the YAML/JSON-serializable subset of Config, mirroring the
// way caddy loads its app config from a file rather than hand-building a
// struct in Go.
type fileConfig struct {
	SecureProtocol   string   `yaml:"secure_protocol" json:"secure_protocol"`
	CADirectory      string   `yaml:"ca_directory" json:"ca_directory"`
	CAFile           string   `yaml:"ca_file" json:"ca_file"`
	CertFile         string   `yaml:"cert_file" json:"cert_file"`
	KeyFile          string   `yaml:"key_file" json:"key_file"`
	CRLFile          string   `yaml:"crl_file" json:"crl_file"`
	OCSPServer       string   `yaml:"ocsp_server" json:"ocsp_server"`
	ALPN             []string `yaml:"alpn" json:"alpn"`
	CheckCertificate *bool    `yaml:"check_certificate" json:"check_certificate"`
	CheckHostname    *bool    `yaml:"check_hostname" json:"check_hostname"`
	PrintInfo        *bool    `yaml:"print_info" json:"print_info"`
	OCSP             *bool    `yaml:"ocsp" json:"ocsp"`
	OCSPStapling     *bool    `yaml:"ocsp_stapling" json:"ocsp_stapling"`
	OCSPNonce        *bool    `yaml:"ocsp_nonce" json:"ocsp_nonce"`
	OCSPDate         *bool    `yaml:"ocsp_date" json:"ocsp_date"`
}

// LoadYAML loads a Config from a YAML file, starting from NewConfig's
// defaults and overlaying whatever the file specifies.
func LoadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsengine: reading config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("tlsengine: parsing config %s: %w", path, err)
	}
	return applyFileConfig(fc), nil
}

func applyFileConfig(fc fileConfig) *Config {
	cfg := NewConfig()
	if fc.SecureProtocol != "" {
		cfg.SecureProtocol = Protocol(fc.SecureProtocol)
	}
	if fc.CADirectory != "" {
		cfg.CADirectory = fc.CADirectory
	}
	cfg.CAFile = fc.CAFile
	cfg.CertFile = fc.CertFile
	cfg.KeyFile = fc.KeyFile
	cfg.CRLFile = fc.CRLFile
	cfg.OCSPServer = fc.OCSPServer
	if len(fc.ALPN) > 0 {
		cfg.ALPN = fc.ALPN
	}
	if fc.CheckCertificate != nil {
		cfg.CheckCertificate = *fc.CheckCertificate
	}
	if fc.CheckHostname != nil {
		cfg.CheckHostname = *fc.CheckHostname
	}
	if fc.PrintInfo != nil {
		cfg.PrintInfo = *fc.PrintInfo
	}
	if fc.OCSP != nil {
		cfg.OCSP = *fc.OCSP
	}
	if fc.OCSPStapling != nil {
		cfg.OCSPStapling = *fc.OCSPStapling
	}
	if fc.OCSPNonce != nil {
		cfg.OCSPNonce = *fc.OCSPNonce
	}
	if fc.OCSPDate != nil {
		cfg.OCSPDate = *fc.OCSPDate
	}
	return cfg
}
