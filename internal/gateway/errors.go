package gateway

import "errors"

var (
	// ErrServerEmpty means the gateway answered with an empty or unparseable
	// status body. This is distinct from "not yet confirmed": it indicates the
	// gateway lost the pairing session, and the caller should regenerate
	// rather than spend another verification attempt.
	ErrServerEmpty = errors.New("gateway returned empty or malformed status")

	// ErrNotConfirmed means the gateway parsed the token but the remote
	// device has not completed the pairing handshake yet.
	ErrNotConfirmed = errors.New("pairing not yet confirmed")
)
