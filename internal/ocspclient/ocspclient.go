// Package ocspclient builds and sends OCSP requests and verifies OCSP
// responses, per spec §4.4.2 (OCSP chain check) and §4.5 (response
// verification). It is the Go-native equivalent of the original's
// verify_ocsp() in libwget/ssl_openssl.c.
package ocspclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ocsp"
)

// HTTPDoer is the "execute HTTP request, return body and status" capability
// of spec §6. *http.Client satisfies it directly.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxRedirects caps the redirect chain the OCSP POST will follow, per spec
// §4.4.2 step 5 ("up to 5 redirects").
const maxRedirects = 5

// Fingerprint returns hex(SHA-256(DER(cert))), the OCSP cache key of spec §3
// and §4.4.2 step 1. The result is always 64 lowercase hex characters.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Verdict is the outcome of a single OCSP check, distinguishing a
// definitive answer (which the caller should cache) from one that should
// be treated as ignored (no responder, transient failure, or a non-good,
// non-revoked status).
type Verdict struct {
	Definitive bool
	Revoked    bool
	Reason     string
}

// Options controls nonce and freshness enforcement, per spec §4.5.
type Options struct {
	Nonce          bool
	CheckFreshness bool
	Server         string // explicit override of the responder URI, spec §4.4.2 step 3
	Logger         *zap.Logger
}

// CheckCert queries the OCSP responder for subject (issued by issuer) and
// verifies the response per spec §4.5. It returns a non-definitive,
// no-error verdict when there is no responder to query — spec §4.4.2
// step 3 treats that as "ignored", not a failure.
func CheckCert(ctx context.Context, client HTTPDoer, subject, issuer *x509.Certificate, opts Options) (Verdict, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	responderURL := opts.Server
	if responderURL == "" {
		if len(subject.OCSPServer) == 0 {
			return Verdict{}, nil // no responder configured or advertised: ignored
		}
		responderURL = subject.OCSPServer[0]
	}

	der, nonce, err := buildRequest(subject, issuer, opts.Nonce)
	if err != nil {
		return Verdict{}, fmt.Errorf("ocspclient: building request: %w", err)
	}

	respBytes, err := post(ctx, client, responderURL, der)
	if err != nil {
		logger.Warn("OCSP responder unreachable, ignoring", zap.String("uri", responderURL), zap.Error(err))
		return Verdict{}, nil // transient/non-fatal per spec §7
	}

	resp, err := ocsp.ParseResponseForCert(respBytes, subject, issuer)
	if err != nil {
		logger.Warn("could not parse OCSP response, ignoring", zap.Error(err))
		return Verdict{}, nil
	}

	return verify(resp, nonce, opts, logger)
}

// --- request construction -------------------------------------------------

// ocspNonceOID is id-pkix-ocsp-nonce, RFC 6960 §4.4.1.
var ocspNonceOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type certID struct {
	HashAlgorithm  algorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

type singleRequest struct {
	ReqCert certID
}

type extension struct {
	ID       asn1.ObjectIdentifier
	Critical bool `asn1:"optional"`
	Value    []byte
}

type tbsRequest struct {
	RequestList       []singleRequest
	RequestExtensions []extension `asn1:"explicit,tag:2,optional"`
}

type ocspRequestMessage struct {
	TBSRequest tbsRequest
}

// sha1OID is the hash algorithm CertID uses, per RFC 6960's worked examples
// and golang.org/x/crypto/ocsp's own default when no hash is specified.
var sha1OID = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}

// buildRequest builds and DER-encodes an OCSP request for subject/issuer,
// matching the CertID fields golang.org/x/crypto/ocsp.CreateRequest derives
// (issuer name hash, issuer key hash, serial number), and optionally
// attaches a random nonce extension, per spec §4.4.2 step 4. It returns the
// raw nonce bytes so the caller can later match them against the response.
func buildRequest(subject, issuer *x509.Certificate, withNonce bool) ([]byte, []byte, error) {
	nameHash := sha1Sum(issuer.RawSubject)
	keyHash := sha1Sum(publicKeyBitString(issuer))

	req := tbsRequest{
		RequestList: []singleRequest{{
			ReqCert: certID{
				HashAlgorithm:  algorithmIdentifier{Algorithm: sha1OID, Parameters: asn1.RawValue{Tag: 5}},
				IssuerNameHash: nameHash,
				IssuerKeyHash:  keyHash,
				SerialNumber:   subject.SerialNumber,
			},
		}},
	}

	var nonce []byte
	if withNonce {
		nonce = make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, nil, fmt.Errorf("generating OCSP nonce: %w", err)
		}
		nonceValue, err := asn1.Marshal(nonce)
		if err != nil {
			return nil, nil, err
		}
		req.RequestExtensions = []extension{{ID: ocspNonceOID, Value: nonceValue}}
	}

	der, err := asn1.Marshal(ocspRequestMessage{TBSRequest: req})
	if err != nil {
		return nil, nil, err
	}
	return der, nonce, nil
}

func sha1Sum(b []byte) []byte {
	h := sha1.New()
	h.Write(b)
	return h.Sum(nil)
}

// publicKeyBitString extracts the DER BIT STRING content of the subject
// public key, which is what the issuerKeyHash in CertID is computed over
// (RFC 6960 §4.1.1).
func publicKeyBitString(cert *x509.Certificate) []byte {
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return cert.RawSubjectPublicKeyInfo
	}
	return spki.PublicKey.RightAlign()
}

// --- transport -------------------------------------------------------------

// post sends the OCSP request body to uri with the headers spec §4.4.2
// step 5 requires, following up to maxRedirects redirects.
func post(ctx context.Context, client HTTPDoer, uri string, body []byte) ([]byte, error) {
	current := uri
	for i := 0; i <= maxRedirects; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, current, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept-Encoding", "identity")
		req.Header.Set("Content-Type", "application/ocsp-request")
		req.Header.Set("Accept", "application/ocsp-response")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" || i == maxRedirects {
				return nil, fmt.Errorf("ocspclient: too many redirects or missing Location")
			}
			current = loc
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ocspclient: responder returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return nil, errors.New("ocspclient: too many redirects")
}

// VerifyStapled verifies a server-delivered OCSP staple against subject and
// issuer, per spec §4.4.3 ("obtain the peer chain ... run OCSP verification
// with check_time = ocsp_date"). No nonce is checked for a stapled
// response: the client never sent the request, so there is nothing to
// compare the staple's nonce against.
func VerifyStapled(staple []byte, subject, issuer *x509.Certificate, checkFreshness bool, logger *zap.Logger) (Verdict, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	resp, err := ocsp.ParseResponseForCert(staple, subject, issuer)
	if err != nil {
		return Verdict{}, fmt.Errorf("ocspclient: parsing stapled response: %w", err)
	}
	return verify(resp, nil, Options{CheckFreshness: checkFreshness}, logger)
}

// --- response verification --------------------------------------------------

// verify applies spec §4.5's rules 1-6 to a parsed response.
func verify(resp *ocsp.Response, requestNonce []byte, opts Options, logger *zap.Logger) (Verdict, error) {
	switch resp.Status {
	case ocsp.Good:
		// fall through to freshness/nonce checks below
	case ocsp.Revoked:
		return Verdict{Definitive: true, Revoked: true, Reason: fmt.Sprintf("revoked, reason=%d", resp.RevocationReason)}, nil
	case ocsp.Unknown:
		// spec §4.5 rule 4: unknown is treated the same as revoked, not
		// ignored — a responder that doesn't recognize the serial is no
		// basis for trusting the certificate.
		return Verdict{Definitive: true, Revoked: true, Reason: "responder returned unknown status"}, nil
	default:
		logger.Debug("OCSP response not good", zap.Int("status", resp.Status))
		return Verdict{}, nil
	}

	if opts.CheckFreshness {
		if resp.ThisUpdate.IsZero() {
			return Verdict{}, errors.New("ocspclient: freshness requested but response has no thisUpdate")
		}
		// spec §4.5: "3 days" is strictly (thisUpdate - now) in days <= -3 -> fail
		age := time.Since(resp.ThisUpdate)
		if age >= 3*24*time.Hour {
			return Verdict{}, fmt.Errorf("ocspclient: OCSP response stale: thisUpdate %s is %s old", resp.ThisUpdate, age)
		}
	}

	if opts.Nonce && len(requestNonce) > 0 {
		respNonce := findNonceExtension(resp)
		if respNonce != nil {
			// The request carries the nonce DER-encoded as an OCTET STRING
			// (see buildRequest), so an echoed value is unwrapped before it
			// is compared with the raw request nonce.
			var inner []byte
			if rest, err := asn1.Unmarshal(respNonce, &inner); err == nil && len(rest) == 0 {
				respNonce = inner
			}
			if !bytes.Equal(respNonce, requestNonce) {
				return Verdict{}, errors.New("ocspclient: OCSP nonce mismatch")
			}
		}
		// absence of a nonce extension in the response is tolerated
	}

	return Verdict{Definitive: true, Revoked: false}, nil
}

func findNonceExtension(resp *ocsp.Response) []byte {
	for _, ext := range resp.Extensions {
		if ext.Id.Equal(ocspNonceOID) {
			return ext.Value
		}
	}
	return nil
}
