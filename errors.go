package tlsengine

import "fmt"

// Kind identifies the behavioral category of an Error, per the
// exhaustive taxonomy of error kinds this engine can surface to callers.
type Kind int

const (
	// KindUnknown covers steady-state transport failures that aren't
	// worth distinguishing further to the caller.
	KindUnknown Kind = iota
	// KindInvalid marks invalid input (nil socket, empty hostname) that
	// caused no side effects.
	KindInvalid
	// KindMemory marks a resource allocation failure.
	KindMemory
	// KindTimeout marks a readiness/connect deadline that elapsed.
	KindTimeout
	// KindCertificate marks a chain, HPKP, OCSP, or hostname validation
	// failure; the handshake is aborted and the connection is freed.
	KindCertificate
	// KindHandshake marks a fatal TLS protocol error from the backend.
	KindHandshake
	// KindConfig marks an unknown configuration key; non-fatal, logged
	// and ignored by the caller that raises it.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "INVALID"
	case KindMemory:
		return "MEMORY"
	case KindTimeout:
		return "TIMEOUT"
	case KindCertificate:
		return "CERTIFICATE"
	case KindHandshake:
		return "HANDSHAKE"
	case KindConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// Error is the tagged result this engine returns instead of the sentinel
// integers of the original design (see DESIGN.md, Open Question (a)
// replacement for §9's "replace sentinel integers with a tagged result").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tlsengine: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("tlsengine: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
