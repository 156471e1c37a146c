package wire

// Verbs exchanged between Brain and Worker on the public/private subjects.
const (
	VerbHshake1  = "hshake-1"
	VerbHshake2  = "hshake-2"
	VerbHshake3  = "hshake-3"
	VerbConfig   = "config"
	VerbConfigOk = "config_ok"
	VerbEvent    = "event"
	VerbHbeat    = "hbeat"
)

// WorkerMessage is the {verb, context} shape shared by every Brain<->Worker
// message, public or private.
type WorkerMessage struct {
	Verb    string         `json:"verb"`
	Context MessageContext `json:"context"`
}

// MessageContext carries the handshake addressing and, once a ticket has
// been injected for a config dispatch, the ticket payload. Not every field
// is populated by every verb.
type MessageContext struct {
	WorkerID   string         `json:"workerID"`
	ChToBrain  string         `json:"ch_to_brain,omitempty"`
	ChToWorker string         `json:"ch_to_worker,omitempty"`
	Timestamp  float64        `json:"timestamp,omitempty"`
	Ticket     *TicketPayload `json:"ticket,omitempty"`
}

// TicketPayload is the ticket content injected into a config dispatch's
// context, so the worker can read the pending start/stop request that
// gated its (re)configuration.
type TicketPayload struct {
	TicketID string     `json:"ticket_id"`
	Request  ApiRequest `json:"msg"`
}
