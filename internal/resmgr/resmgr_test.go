package resmgr

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/wire"
)

type fakeSpawner struct {
	mu       sync.Mutex
	spawned  []string
	removed  []string
	failNext bool
}

func (f *fakeSpawner) Spawn(_ context.Context, workerID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, workerID)
	return nil
}

func (f *fakeSpawner) Remove(_ context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, workerID)
	return nil
}

func waitForReply(t *testing.T, b bus.Bus, subject string) wire.ResMgrResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	replies := make(chan wire.ResMgrResponse, 1)
	sub, err := b.Subscribe(ctx, subject, func(m bus.Message) {
		var resp wire.ResMgrResponse
		if err := json.Unmarshal(m.Data, &resp); err == nil {
			replies <- resp
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case r := <-replies:
		return r
	case <-ctx.Done():
		t.Fatal("timed out waiting for resource manager reply")
		return wire.ResMgrResponse{}
	}
}

func TestCreateWorkerPublishesWorkerID(t *testing.T) {
	b := bus.NewMemory()
	spawner := &fakeSpawner{}
	log, err := logger.New("test")
	require.NoError(t, err)
	m := New(b, spawner, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = m.Run(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		req := wire.ResMgrRequest{
			Command:    wire.CmdCreateWorker,
			TicketID:   "anal-1",
			AnalyzerID: "anal-1",
			Params:     wire.ResMgrParams{WorkerName: "jagereye/worker_tripwire"},
		}
		data, _ := json.Marshal(req)
		_ = b.Publish(context.Background(), "ch_brain_res", data)
	}()

	resp := waitForReply(t, b, "ch_res_brain")
	require.NotNil(t, resp.Response)
	require.NotEmpty(t, resp.Response.WorkerID)
	require.Equal(t, "anal-1", resp.AnalyzerID)
}

func TestRemoveWorkerUsesTrackedWorkerID(t *testing.T) {
	b := bus.NewMemory()
	spawner := &fakeSpawner{}
	log, err := logger.New("test")
	require.NoError(t, err)
	m := New(b, spawner, log)
	m.active["anal-1"] = "worker-123"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = m.Run(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		req := wire.ResMgrRequest{
			Command:    wire.CmdRemoveWorker,
			TicketID:   "anal-1",
			AnalyzerID: "anal-1",
		}
		data, _ := json.Marshal(req)
		_ = b.Publish(context.Background(), "ch_brain_res", data)
	}()

	resp := waitForReply(t, b, "ch_res_brain")
	require.NotNil(t, resp.Response)
	require.Equal(t, "worker-123", resp.Response.WorkerID)
}
