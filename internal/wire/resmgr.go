package wire

// Resource Manager commands, exchanged on ch_brain_res / ch_res_brain.
const (
	CmdCreateWorker = "CREATE_WORKER"
	CmdRemoveWorker = "REMOVE_WORKER"
)

// ResMgrRequest is published by the Brain on ch_brain_res.
type ResMgrRequest struct {
	Command    string       `json:"command"`
	TicketID   string       `json:"ticketId,omitempty"`
	AnalyzerID string       `json:"analyzerId"`
	Params     ResMgrParams `json:"params"`
}

type ResMgrParams struct {
	WorkerName string `json:"workerName,omitempty"`
	WorkerID   string `json:"workerId,omitempty"`
}

// ResMgrResponse is published by the Resource Manager on ch_res_brain.
type ResMgrResponse struct {
	Command    string        `json:"command"`
	TicketID   string        `json:"ticketId,omitempty"`
	AnalyzerID string        `json:"analyzerId"`
	Response   *ResMgrResult `json:"response,omitempty"`
	Error      *ResMgrError  `json:"error,omitempty"`
}

type ResMgrResult struct {
	WorkerID string `json:"workerId"`
}

type ResMgrError struct {
	Code string `json:"code"`
}
