package tlsengine

import "github.com/tlsengine/client/store"

// Type aliases so callers configuring an Engine don't need to import the
// store package directly for the common case of passing one of its
// interfaces into Config.

type (
	SessionStore   = store.SessionStore
	OCSPCache      = store.OCSPCache
	HPKPStore      = store.HPKPStore
	PinCheckResult = store.PinCheckResult
)

const (
	PinMatch    = store.PinMatch
	PinNotFound = store.PinNotFound
	PinMismatch = store.PinMismatch
	PinError    = store.PinError
)
