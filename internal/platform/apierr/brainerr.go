package apierr

import "errors"

// Sentinel errors classifying the failure kinds in the coordination
// engine's error handling design: protocol violations, contract
// violations, a held ticket, a missing resource, an invalid event, and
// backend (store/bus/event-store) failures.
var (
	ErrNotAvailable      = errors.New("ticket held: not available")
	ErrNotFound          = errors.New("resource not found")
	ErrNoOp              = errors.New("no-op")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrContractViolation = errors.New("contract violation")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrBackend           = errors.New("backend failure")
)

// Code classifies err into one of the closed set of API reply codes. It
// returns "" for errors that should never reach an API reply (protocol
// violations, schema-invalid events, and backend failures are logged and
// swallowed, never surfaced to a client).
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAvailable):
		return "NOT_AVAILABLE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrNoOp):
		return "NO_OP"
	default:
		return ""
	}
}
