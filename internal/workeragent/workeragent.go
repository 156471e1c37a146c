// Package workeragent is the canonical store of analyzers and worker
// records: the binding between an analyzer and its worker, the worker's
// status, its pipelines, and its last heartbeat.
package workeragent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/store"
)

// Agent is scoped to one typename (e.g. a pipeline family), matching the
// per-deployment key namespace the Brain is configured with.
type Agent struct {
	typename string
	store    store.Store
}

// New returns a worker Agent namespaced under typename.
func New(typename string, s store.Store) *Agent {
	return &Agent{typename: typename, store: s}
}

func (a *Agent) analKey(analyzerID string) string {
	return fmt.Sprintf("%s:anal:%s", a.typename, analyzerID)
}

func (a *Agent) workerKey(workerID, field string) string {
	return fmt.Sprintf("%s:worker:%s:%s", a.typename, workerID, field)
}

// GetWorkerID returns the worker bound to analyzerID, if any.
func (a *Agent) GetWorkerID(ctx context.Context, analyzerID string) (string, bool, error) {
	v, ok, err := a.store.Get(ctx, a.analKey(analyzerID))
	if err != nil {
		return "", false, fmt.Errorf("workeragent: get worker id: %w", err)
	}
	return v, ok, nil
}

// CreateAnalyzer atomically writes the analyzer->worker binding and the
// worker's initial fields. Idempotent: calling it again with the same
// analyzerID/workerID pair simply rewrites the same values, which is what
// a retried Resource Manager response requires.
func (a *Agent) CreateAnalyzer(ctx context.Context, analyzerID, workerID string) error {
	pipelines, err := json.Marshal([]domain.Pipeline{})
	if err != nil {
		return fmt.Errorf("workeragent: marshal empty pipelines: %w", err)
	}
	err = a.store.MSet(ctx, map[string]string{
		a.analKey(analyzerID):              workerID,
		a.workerKey(workerID, "status"):     domain.StatusInitial.String(),
		a.workerKey(workerID, "pipelines"):  string(pipelines),
		a.workerKey(workerID, "analyzerId"): analyzerID,
	})
	if err != nil {
		return fmt.Errorf("workeragent: create analyzer: %w", err)
	}
	return nil
}

// GetInfo returns the (status, pipelines) pair for an analyzer or worker.
// Exactly one of analyzerID/workerID should be non-empty.
func (a *Agent) GetInfo(ctx context.Context, analyzerID, workerID string) (domain.Status, []domain.Pipeline, bool, error) {
	workerID, found, err := a.resolveWorkerID(ctx, analyzerID, workerID)
	if err != nil || !found {
		return "", nil, found, err
	}

	vals, err := a.store.MGet(ctx, []string{
		a.workerKey(workerID, "status"),
		a.workerKey(workerID, "pipelines"),
	})
	if err != nil {
		return "", nil, false, fmt.Errorf("workeragent: get info: %w", err)
	}
	if vals[0] == nil {
		return "", nil, false, nil
	}
	status, err := domain.ParseStatus(*vals[0])
	if err != nil {
		return "", nil, false, fmt.Errorf("workeragent: get info: %w", err)
	}
	var pipelines []domain.Pipeline
	if vals[1] != nil && *vals[1] != "" {
		if err := json.Unmarshal([]byte(*vals[1]), &pipelines); err != nil {
			return "", nil, false, fmt.Errorf("workeragent: get info: decode pipelines: %w", err)
		}
	}
	return status, pipelines, true, nil
}

// GetStatus returns just the status half of GetInfo.
func (a *Agent) GetStatus(ctx context.Context, analyzerID, workerID string) (domain.Status, bool, error) {
	workerID, found, err := a.resolveWorkerID(ctx, analyzerID, workerID)
	if err != nil || !found {
		return "", found, err
	}
	v, ok, err := a.store.Get(ctx, a.workerKey(workerID, "status"))
	if err != nil {
		return "", false, fmt.Errorf("workeragent: get status: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	status, err := domain.ParseStatus(v)
	if err != nil {
		return "", false, fmt.Errorf("workeragent: get status: %w", err)
	}
	return status, true, nil
}

// UpdateStatus transitions a worker's status. Callers are responsible for
// respecting the state machine; this just persists the value.
func (a *Agent) UpdateStatus(ctx context.Context, analyzerID, workerID string, status domain.Status) (bool, error) {
	workerID, found, err := a.resolveWorkerID(ctx, analyzerID, workerID)
	if err != nil || !found {
		return false, err
	}
	if err := a.store.Set(ctx, a.workerKey(workerID, "status"), status.String()); err != nil {
		return false, fmt.Errorf("workeragent: update status: %w", err)
	}
	return true, nil
}

// UpdatePipelines overwrites the persisted pipeline list for workerID.
func (a *Agent) UpdatePipelines(ctx context.Context, workerID string, pipelines []domain.Pipeline) error {
	if workerID == "" {
		return nil
	}
	raw, err := json.Marshal(pipelines)
	if err != nil {
		return fmt.Errorf("workeragent: marshal pipelines: %w", err)
	}
	if err := a.store.Set(ctx, a.workerKey(workerID, "pipelines"), string(raw)); err != nil {
		return fmt.Errorf("workeragent: update pipelines: %w", err)
	}
	return nil
}

// GetAnalyzerID returns the analyzer a worker is bound to.
func (a *Agent) GetAnalyzerID(ctx context.Context, workerID string) (string, bool, error) {
	v, ok, err := a.store.Get(ctx, a.workerKey(workerID, "analyzerId"))
	if err != nil {
		return "", false, fmt.Errorf("workeragent: get analyzer id: %w", err)
	}
	return v, ok, nil
}

// StartListenHeartbeat seeds hbeat with the current clock, unconditionally.
func (a *Agent) StartListenHeartbeat(ctx context.Context, workerID string) error {
	if err := a.store.Set(ctx, a.workerKey(workerID, "hbeat"), formatTimestamp(time.Now())); err != nil {
		return fmt.Errorf("workeragent: start listen heartbeat: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes hbeat only if the worker key still exists,
// preventing a torn-down worker from being resurrected by a late, in-flight
// heartbeat message.
func (a *Agent) UpdateHeartbeat(ctx context.Context, workerID string) (bool, error) {
	ok, err := a.store.SetXX(ctx, a.workerKey(workerID, "hbeat"), formatTimestamp(time.Now()))
	if err != nil {
		return false, fmt.Errorf("workeragent: update heartbeat: %w", err)
	}
	return ok, nil
}

// DownWorker describes a worker the liveness sweep found to be dead.
type DownWorker struct {
	WorkerID string
}

// ExamineAllWorkers scans every worker in {ready, running}, compares its
// heartbeat age against threshold, and transitions stale ones to down. It
// returns the workers it downed so the caller can react (e.g. log, emit a
// metric).
func (a *Agent) ExamineAllWorkers(ctx context.Context, threshold time.Duration) ([]DownWorker, error) {
	statusKeys, err := a.store.Keys(ctx, a.workerKey("*", "status"))
	if err != nil {
		return nil, fmt.Errorf("workeragent: examine all workers: scan: %w", err)
	}
	if len(statusKeys) == 0 {
		return nil, nil
	}

	statusVals, err := a.store.MGet(ctx, statusKeys)
	if err != nil {
		return nil, fmt.Errorf("workeragent: examine all workers: mget status: %w", err)
	}

	var qualified []string
	for i, key := range statusKeys {
		if statusVals[i] == nil {
			continue
		}
		s, err := domain.ParseStatus(*statusVals[i])
		if err != nil {
			continue
		}
		if s == domain.StatusReady || s == domain.StatusRunning {
			qualified = append(qualified, key)
		}
	}
	if len(qualified) == 0 {
		return nil, nil
	}

	hbeatKeys := make([]string, len(qualified))
	for i, sk := range qualified {
		hbeatKeys[i] = strings.Replace(sk, ":status", ":hbeat", 1)
	}
	hbeatVals, err := a.store.MGet(ctx, hbeatKeys)
	if err != nil {
		return nil, fmt.Errorf("workeragent: examine all workers: mget hbeat: %w", err)
	}

	now := time.Now()
	var down []DownWorker
	for i, sk := range qualified {
		if hbeatVals[i] == nil {
			continue
		}
		hbeat, err := parseTimestamp(*hbeatVals[i])
		if err != nil {
			continue
		}
		if now.Sub(hbeat) > threshold {
			workerID := extractWorkerID(sk)
			if err := a.store.Set(ctx, sk, domain.StatusDown.String()); err != nil {
				return down, fmt.Errorf("workeragent: examine all workers: set down: %w", err)
			}
			down = append(down, DownWorker{WorkerID: workerID})
		}
	}
	return down, nil
}

// DeleteAnalyzerAndWorker removes every key associated with analyzerID and
// workerID in one batch.
func (a *Agent) DeleteAnalyzerAndWorker(ctx context.Context, analyzerID, workerID string) error {
	keys := []string{
		a.analKey(analyzerID),
		a.workerKey(workerID, "status"),
		a.workerKey(workerID, "hbeat"),
		a.workerKey(workerID, "pipelines"),
		a.workerKey(workerID, "analyzerId"),
	}
	if _, err := a.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("workeragent: delete analyzer and worker: %w", err)
	}
	return nil
}

func (a *Agent) resolveWorkerID(ctx context.Context, analyzerID, workerID string) (string, bool, error) {
	if workerID != "" {
		return workerID, true, nil
	}
	if analyzerID == "" {
		return "", false, nil
	}
	return a.GetWorkerID(ctx, analyzerID)
}

// extractWorkerID pulls the {worker_id} segment out of a
// "{typename}:worker:{worker_id}:status" key.
func extractWorkerID(statusKey string) string {
	parts := strings.Split(statusKey, ":")
	if len(parts) < 4 {
		return ""
	}
	return parts[2]
}

func formatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func parseTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	secs := int64(f)
	nanos := int64((f - float64(secs)) * 1e9)
	return time.Unix(secs, nanos), nil
}
