package tlsengine

import (
	"crypto/tls"
	"net"
	"time"

	"go.uber.org/zap"
)

// Conn is the byte-oriented, timeout-aware transport handle of spec §4.7
// and §4.8, returned by Engine.Open after a successful handshake. Its
// Read/Write take an explicit timeout argument rather than relying on
// SetDeadline, mirroring the single `ssl_transfer(direction, session,
// timeout, buf, count)` primitive of spec §4.7 — one call, one timeout,
// no separate deadline-setting step for callers to forget.
type Conn struct {
	tlsConn *tls.Conn
	logger  *zap.Logger

	// Stats is the snapshot taken at the end of the handshake that
	// produced this Conn (spec §6's TLS stats payload).
	Stats TLSStats
}

// normalizeTimeout applies spec §4.7's rule: negative becomes -1 (wait
// indefinitely), zero means non-blocking, positive is taken as given.
func normalizeTimeout(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return -1
	}
	return timeout
}

// Read fills buf, waiting up to timeout for the connection to become
// readable. count == 0 (an empty buf) returns 0 immediately without
// touching the connection, per spec's boundary behavior.
func (c *Conn) Read(buf []byte, timeout time.Duration) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return c.transfer(buf, normalizeTimeout(timeout), false)
}

// Write sends buf, waiting up to timeout for the connection to become
// writable. Same count==0 short-circuit as Read.
func (c *Conn) Write(buf []byte, timeout time.Duration) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return c.transfer(buf, normalizeTimeout(timeout), true)
}

// transfer is the pump of spec §4.7. Go's net.Conn deadline plus the
// runtime netpoller already provide the "wait for fd readiness, then
// attempt the operation, retry on WANT_READ/WANT_WRITE" loop the original
// spells out explicitly — crypto/tls.Conn.Read/Write block cooperatively
// against the deadline we set here, so there is no separate readiness
// wait to author by hand.
func (c *Conn) transfer(buf []byte, timeout time.Duration, write bool) (int, error) {
	if c.tlsConn == nil {
		return 0, newError("transfer", KindInvalid, errClosedConn)
	}

	switch {
	case timeout < 0:
		c.tlsConn.SetDeadline(time.Time{})
	case timeout == 0:
		// Non-blocking: force an immediately-expired deadline so the
		// underlying Read/Write returns at once with a timeout error
		// rather than parking in the netpoller, then translate that
		// into the "would block, return 0" rule below.
		c.tlsConn.SetDeadline(time.Now().Add(-time.Millisecond))
	default:
		c.tlsConn.SetDeadline(time.Now().Add(timeout))
	}

	var n int
	var err error
	if write {
		n, err = c.tlsConn.Write(buf)
	} else {
		n, err = c.tlsConn.Read(buf)
	}
	if err == nil {
		return n, nil
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if timeout == 0 {
			return 0, nil
		}
		return n, newError("transfer", KindTimeout, err)
	}

	// Any other backend error, including a fatal handshake-layer error
	// surfacing during steady-state I/O, is surfaced to callers as a
	// generic error (spec §4.7: "translate E_HANDSHAKE into E_UNKNOWN for
	// callers"), with the backend's reason preserved via Unwrap.
	return n, newError("transfer", KindUnknown, err)
}

// Close shuts the connection down and frees the handle. It makes a single
// crypto/tls.Conn.Close call, which sends close_notify and then closes the
// underlying connection; it does not wait for or read the peer's own
// close_notify, so only the local half of a bidirectional shutdown takes
// place. Repeated calls are safe no-ops once the handle is freed.
func (c *Conn) Close() error {
	if c.tlsConn == nil {
		return nil
	}
	conn := c.tlsConn
	c.tlsConn = nil
	if err := conn.Close(); err != nil {
		return newError("Close", KindUnknown, err)
	}
	return nil
}

var errClosedConn = closedConnError{}

type closedConnError struct{}

func (closedConnError) Error() string { return "tlsengine: use of closed connection" }
