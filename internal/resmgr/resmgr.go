// Package resmgr is a reference Resource Manager: it listens for
// CREATE_WORKER/REMOVE_WORKER requests from a Brain and materializes (or
// tears down) worker processes through an injectable Spawner, mirroring
// the original standalone resource-manager service.
package resmgr

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/wire"
)

const (
	subjectFromBrain = "ch_brain_res"
	subjectToBrain   = "ch_res_brain"
)

// Spawner materializes or tears down a worker process. The reference
// implementation in cmd/resmgr shells out to a worker binary; tests
// supply a fake that just records calls.
type Spawner interface {
	Spawn(ctx context.Context, workerID, workerName string) error
	Remove(ctx context.Context, workerID string) error
}

// Manager is the Resource Manager: it subscribes to subjectFromBrain and
// answers on subjectToBrain.
type Manager struct {
	bus     bus.Bus
	spawner Spawner
	log     *logger.Logger

	active map[string]string // ticketID -> workerID, for REMOVE_WORKER lookups
}

// New returns a Manager wired to bus and spawner.
func New(b bus.Bus, spawner Spawner, log *logger.Logger) *Manager {
	return &Manager{
		bus:     b,
		spawner: spawner,
		log:     log.With("component", "resmgr"),
		active:  make(map[string]string),
	}
}

// Run subscribes to the Brain's request subject and serves requests until
// ctx is canceled.
func (m *Manager) Run(ctx context.Context) (bus.Subscription, error) {
	return m.bus.Subscribe(ctx, subjectFromBrain, func(msg bus.Message) {
		m.handle(ctx, msg)
	})
}

func (m *Manager) handle(ctx context.Context, msg bus.Message) {
	var req wire.ResMgrRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		m.log.Warn("dropping malformed resource manager request", "error", err)
		return
	}

	switch req.Command {
	case wire.CmdCreateWorker:
		m.handleCreate(ctx, req)
	case wire.CmdRemoveWorker:
		m.handleRemove(ctx, req)
	default:
		m.log.Warn("dropping unknown resource manager command", "command", req.Command)
	}
}

func (m *Manager) handleCreate(ctx context.Context, req wire.ResMgrRequest) {
	workerID := "worker_" + uuid.NewString()

	if err := m.spawner.Spawn(ctx, workerID, req.Params.WorkerName); err != nil {
		m.log.Error("failed to spawn worker", "analyzer_id", req.AnalyzerID, "error", err)
		m.publish(ctx, wire.ResMgrResponse{
			Command:    wire.CmdCreateWorker,
			TicketID:   req.TicketID,
			AnalyzerID: req.AnalyzerID,
			Error:      &wire.ResMgrError{Code: "SPAWN_FAILED"},
		})
		return
	}

	m.active[req.TicketID] = workerID
	m.publish(ctx, wire.ResMgrResponse{
		Command:    wire.CmdCreateWorker,
		TicketID:   req.TicketID,
		AnalyzerID: req.AnalyzerID,
		Response:   &wire.ResMgrResult{WorkerID: workerID},
	})
}

func (m *Manager) handleRemove(ctx context.Context, req wire.ResMgrRequest) {
	workerID := req.Params.WorkerID
	if workerID == "" {
		workerID = m.active[req.TicketID]
	}

	if err := m.spawner.Remove(ctx, workerID); err != nil {
		m.log.Error("failed to remove worker", "worker_id", workerID, "error", err)
		m.publish(ctx, wire.ResMgrResponse{
			Command:    wire.CmdRemoveWorker,
			TicketID:   req.TicketID,
			AnalyzerID: req.AnalyzerID,
			Error:      &wire.ResMgrError{Code: "REMOVE_FAILED"},
		})
		return
	}

	delete(m.active, req.TicketID)
	m.publish(ctx, wire.ResMgrResponse{
		Command:    wire.CmdRemoveWorker,
		TicketID:   req.TicketID,
		AnalyzerID: req.AnalyzerID,
		Response:   &wire.ResMgrResult{WorkerID: workerID},
	})
}

func (m *Manager) publish(ctx context.Context, resp wire.ResMgrResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		m.log.Error("failed to marshal resource manager response", "error", err)
		return
	}
	if err := m.bus.Publish(ctx, subjectToBrain, data); err != nil {
		m.log.Error("failed to publish resource manager response", "error", err)
	}
}
