// Package contract validates inbound API requests against the typename
// this Brain instance serves and builds the typed replies the wire
// package defines.
package contract

import (
	"errors"

	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/platform/apierr"
	"github.com/weitingchou/jagereye/internal/wire"
)

// ErrNotForUs means the request's params.type doesn't match this Brain's
// typename: the message was meant for a different Brain instance and
// must be silently ignored, not logged as an error.
var ErrNotForUs = errors.New("contract: request not for this typename")

// Validate checks req against the rules for its command, scoped to
// typename. Returns ErrNotForUs when the request is meant for a different
// Brain instance, or an apierr.ErrContractViolation-wrapped error when the
// shape is malformed.
func Validate(req wire.ApiRequest, typename string) error {
	switch req.Command {
	case wire.CmdStartAnalyzer:
		return validateStart(req, typename)
	case wire.CmdStopAnalyzer, wire.CmdReqAnalyzerStatus:
		return validateIDOnly(req, typename)
	default:
		return apierr.ErrContractViolation
	}
}

func validateStart(req wire.ApiRequest, typename string) error {
	if req.Params.Type != typename {
		return ErrNotForUs
	}
	if len(req.Params.Source) == 0 {
		return apierr.ErrContractViolation
	}
	if len(req.Params.Pipelines) == 0 {
		return apierr.ErrContractViolation
	}
	return nil
}

func validateIDOnly(req wire.ApiRequest, typename string) error {
	if req.Params.Type != "" && req.Params.Type != typename {
		return ErrNotForUs
	}
	if req.Params.ID == "" {
		return apierr.ErrContractViolation
	}
	return nil
}

// ReplyFor translates an error from Validate, or from a downstream Brain
// operation, into the wire reply it should produce. Callers should only
// reach this for errors that warrant a reply; ErrNotForUs and plain
// protocol/contract violations are dropped before a reply is built.
func ReplyFor(err error) wire.ApiReply {
	switch apierr.Code(err) {
	case "NOT_AVAILABLE":
		return wire.ReplyNotAvailableMsg()
	case "NOT_FOUND":
		return wire.ReplyNotFoundMsg()
	case "NO_OP":
		return wire.ReplyNoOpMsg()
	default:
		return wire.ReplyNotFoundMsg()
	}
}

// StatusReply builds the typed status reply for a successful status
// lookup.
func StatusReply(typename, status string, pipelines []domain.Pipeline) wire.ApiReply {
	return wire.ReplyStatus(typename, status, pipelines)
}
