package domain

// Pipeline is one named, parameterized stage in an analyzer's pipeline
// list. The core never interprets Params; it is opaque configuration
// handed to the pipeline runner.
type Pipeline struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Source describes the video source an analyzer reads from. It carries at
// least a URL; additional keys are opaque and pipeline-specific.
type Source map[string]any

// URL returns the source's url field, or "" if absent/not a string.
func (s Source) URL() string {
	if s == nil {
		return ""
	}
	v, _ := s["url"].(string)
	return v
}

// Analyzer is the client-owned configuration unit: a video source plus an
// ordered list of pipelines. It is created by a start request and
// destroyed by a stop request; it may only be mutated while no worker is
// bound to it.
type Analyzer struct {
	AnalyzerID string     `json:"analyzer_id"`
	Type       string     `json:"type"`
	Source     Source     `json:"source"`
	Pipelines  []Pipeline `json:"pipelines"`
}

// WorkerRecord is the Brain's canonical view of one worker process. There
// is a bijection between a running worker and its analyzer.
type WorkerRecord struct {
	WorkerID      string
	AnalyzerID    string
	Status        Status
	Pipelines     []Pipeline
	LastHeartbeat float64 // seconds since epoch
}

// Event is produced by a worker and queued for the Brain to drain.
type Event struct {
	Type      string         `json:"type"`
	AppName   string         `json:"app_name"`
	Timestamp float64        `json:"timestamp"`
	Content   map[string]any `json:"content"`
}
