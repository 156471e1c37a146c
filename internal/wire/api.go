// Package wire defines the JSON envelopes exchanged on the message bus.
//
// Every inbound message is deserialized into a closed sum type rather than
// inspected ad hoc: ApiRequest's Command selects one of {Start, Stop,
// Status}, WorkerMessage's Verb selects one of {Hshake1, Hshake3, ConfigOk,
// Event, Heartbeat}, and ResMgrResponse's Command/Error selects {CreateOk,
// RemoveOk, Error}. Unknown variants are dropped at the boundary by the
// package that decodes them (internal/contract, internal/brain).
package wire

import "github.com/weitingchou/jagereye/internal/domain"

// API commands, the closed set a client may send on ch_api_brain.
const (
	CmdStartAnalyzer      = "START_ANALYZER"
	CmdStopAnalyzer       = "STOP_ANALYZER"
	CmdReqAnalyzerStatus  = "REQ_ANALYZER_STATUS"
)

// API reply codes, the closed set a Brain may send back.
const (
	ReplyAnalyzerStatus = "REPLY_ANALYZER_STATUS"
	ReplyNotAvailable   = "NOT_AVAILABLE"
	ReplyNotFound       = "NOT_FOUND"
	ReplyNoOp           = "NO_OP"
)

// ApiRequest is the {command, params} shape clients publish on
// ch_api_brain. ReplyTo is this repository's stand-in for NATS' implicit
// reply subject: Redis Pub/Sub has no request/reply primitive, so a
// requester generates an inbox subject (bus.NewInbox) and the Brain
// publishes its reply there directly.
type ApiRequest struct {
	Command string    `json:"command"`
	Params  ApiParams `json:"params"`
	ReplyTo string    `json:"replyTo"`
}

// ApiParams holds the union of fields any API command may carry. Only the
// fields relevant to Command are populated by a well-formed request.
type ApiParams struct {
	ID        string            `json:"id,omitempty"`
	Type      string            `json:"type,omitempty"`
	Source    domain.Source     `json:"source,omitempty"`
	Pipelines []domain.Pipeline `json:"pipelines,omitempty"`
}

// ApiReply is the {result:{...}} or {error:{code}} shape the Brain sends
// back on ReplyTo.
type ApiReply struct {
	Result *ApiResult `json:"result,omitempty"`
	Error  *ApiError  `json:"error,omitempty"`
}

type ApiResult struct {
	Code      string            `json:"code"`
	Type      string            `json:"type,omitempty"`
	Status    string            `json:"status,omitempty"`
	Pipelines []domain.Pipeline `json:"pipelines,omitempty"`
}

type ApiError struct {
	Code string `json:"code"`
}

func ReplyStatus(typename, status string, pipelines []domain.Pipeline) ApiReply {
	return ApiReply{Result: &ApiResult{
		Code:      ReplyAnalyzerStatus,
		Type:      typename,
		Status:    status,
		Pipelines: pipelines,
	}}
}

func ReplyNotAvailableMsg() ApiReply { return ApiReply{Error: &ApiError{Code: ReplyNotAvailable}} }
func ReplyNotFoundMsg() ApiReply     { return ApiReply{Error: &ApiError{Code: ReplyNotFound}} }
func ReplyNoOpMsg() ApiReply         { return ApiReply{Error: &ApiError{Code: ReplyNoOp}} }
